package handlers

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arnavshah/staffing-engine-go/pkg/auth"
	"github.com/arnavshah/staffing-engine-go/pkg/database"
	"github.com/arnavshah/staffing-engine-go/pkg/engine"
	"github.com/arnavshah/staffing-engine-go/pkg/metrics"
	"github.com/arnavshah/staffing-engine-go/pkg/models"
	"github.com/arnavshah/staffing-engine-go/pkg/policy"
)

const weekDateLayout = "2006-01-02"

// Handler contains dependencies for the route handlers
type Handler struct {
	DB      *gorm.DB
	Metrics *metrics.Metrics
}

// ScheduleRequest is the JSON body for schedule generation.
type ScheduleRequest struct {
	WeekStart     string             `json:"week_start" binding:"required"`
	Policy        json.RawMessage    `json:"policy,omitempty"`
	Employees     []models.Employee  `json:"employees"`
	Week          models.WeekContext `json:"week"`
	Seed          *int64             `json:"seed,omitempty"`
	Attempts      int                `json:"attempts,omitempty"`
	CutRelaxLevel int                `json:"cut_relax_level,omitempty"`
	WageOverrides map[string]float64 `json:"wage_overrides,omitempty"`
}

// AuthMiddleware verifies the JWT token for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Strip "Bearer " if present
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}

		claims, err := auth.VerifyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}

// APIKeyMiddleware verifies the API key for schedule routes using HMAC
func (h *Handler) APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Authorization")
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API Key required"})
			c.Abort()
			return
		}

		if len(key) > 7 && key[:7] == "Bearer " {
			key = key[7:]
		}

		userID, err := auth.VerifyHMACKey(key)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API Key signature"})
			c.Abort()
			return
		}

		// A valid signature is not enough: the key must still be
		// registered, so revoked keys stop working immediately.
		apiKey, err := auth.VerifyAPIKey(h.DB, key)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API Key revoked or not registered"})
			c.Abort()
			return
		}

		c.Set("apiKey", apiKey)
		c.Set("userID", userID)
		c.Next()
	}
}

func (h *Handler) runGeneration(c *gin.Context, req *ScheduleRequest) (time.Time, models.ScheduleResult, bool) {
	weekStart, err := time.Parse(weekDateLayout, req.WeekStart)
	if err != nil {
		h.Metrics.RunErrorsTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "week_start must be YYYY-MM-DD"})
		return time.Time{}, models.ScheduleResult{}, false
	}
	var pol *policy.Model
	if len(req.Policy) > 0 {
		pol, err = policy.FromJSON(req.Policy)
		if err != nil {
			h.Metrics.RunErrorsTotal.Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid policy: " + err.Error()})
			return time.Time{}, models.ScheduleResult{}, false
		}
	} else {
		pol = policy.Default()
	}

	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}
	actor, _ := c.Get("userID")
	actorName, _ := actor.(string)
	opts := engine.Options{
		Actor:         actorName,
		Rand:          rand.New(rand.NewSource(seed)),
		Attempts:      req.Attempts,
		WageOverrides: req.WageOverrides,
		CutRelaxLevel: req.CutRelaxLevel,
	}

	started := time.Now()
	result := engine.Generate(pol, req.Employees, req.Week, weekStart, opts)
	unfilled := 0
	for _, shift := range result.Assignments {
		if shift.EmployeeID == nil {
			unfilled++
		}
	}
	h.Metrics.ObserveRun(started, len(result.Assignments), unfilled, len(result.Warnings), result.Summary.PolicyBudgetRatio)
	h.RecordUsage(c, len(result.Assignments), len(req.Employees))
	return weekStart, result, true
}

// GenerateSchedule handles the stateless JSON scheduling request.
func (h *Handler) GenerateSchedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Metrics.RunErrorsTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, result, ok := h.runGeneration(c, &req); ok {
		c.JSON(http.StatusOK, result)
	}
}

// SaveWeek generates a schedule and persists it, replacing any earlier
// schedule stored for the same week.
func (h *Handler) SaveWeek(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Metrics.RunErrorsTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	weekStart, result, ok := h.runGeneration(c, &req)
	if !ok {
		return
	}

	actor, _ := c.Get("userID")
	actorName, _ := actor.(string)
	week := database.ScheduleWeek{
		WeekStart: weekStart.Format(weekDateLayout),
		Actor:     actorName,
		TotalCost: result.Summary.TotalCost,
		Warnings:  strings.Join(result.Warnings, "\n"),
	}
	shifts := make([]database.StoredShift, 0, len(result.Assignments))
	for _, shift := range result.Assignments {
		shifts = append(shifts, database.StoredShift{
			EmployeeID:   shift.EmployeeID,
			EmployeeName: shift.EmployeeName,
			Role:         shift.Role,
			RoleGroup:    shift.RoleGroup,
			Day:          shift.Day,
			Start:        shift.Start,
			End:          shift.End,
			HourlyRate:   shift.HourlyRate,
			Cost:         shift.Cost,
			Location:     shift.Location,
			Notes:        shift.Notes,
			Locked:       shift.Locked,
		})
	}
	if err := database.ReplaceWeek(h.DB, week, shifts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not persist schedule"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"week_start": week.WeekStart,
		"saved":      len(shifts),
		"result":     result,
	})
}

// GetWeek returns a previously persisted week.
func (h *Handler) GetWeek(c *gin.Context) {
	date := c.Param("date")
	if _, err := time.Parse(weekDateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	week, shifts, err := database.LoadWeek(h.DB, date)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No schedule stored for " + date})
		return
	}
	c.JSON(http.StatusOK, gin.H{"week": week, "shifts": shifts})
}

// RecordUsage records API usage in the database using an efficient upsert
func (h *Handler) RecordUsage(c *gin.Context, shiftCount, employeeCount int) {
	apiKeyRaw, exists := c.Get("apiKey")
	if !exists {
		return
	}
	apiKey := apiKeyRaw.(*database.APIKey)

	today := time.Now().Format(weekDateLayout)

	// Use OnConflict for a single-query upsert (supported by both Postgres and SQLite)
	h.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count":   gorm.Expr("request_count + ?", 1),
			"total_runs":      gorm.Expr("total_runs + ?", 1),
			"total_shifts":    gorm.Expr("total_shifts + ?", shiftCount),
			"total_employees": gorm.Expr("total_employees + ?", employeeCount),
		}),
	}).Create(&database.APIUsage{
		KeyID:          apiKey.ID,
		Date:           today,
		RequestCount:   1,
		TotalRuns:      1,
		TotalShifts:    shiftCount,
		TotalEmployees: employeeCount,
	})
}

// ScheduleCSV handles CSV roster uploads for scheduling. The employees
// file needs id,name,desired_hours,roles columns (roles pipe-separated,
// unavailability optional as day:start-end pairs); the sales file needs
// day,sales.
func (h *Handler) ScheduleCSV(c *gin.Context) {
	employeesFile, _ := c.FormFile("employees_file")
	salesFile, _ := c.FormFile("sales_file")
	weekStart := c.PostForm("week_start")

	if employeesFile == nil || salesFile == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "employees_file and sales_file are required"})
		return
	}
	if weekStart == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "week_start is required"})
		return
	}

	eFile, err := employeesFile.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open employees file"})
		return
	}
	defer eFile.Close()
	eReader := csv.NewReader(eFile)
	eHeader, err := eReader.Read()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read employees header"})
		return
	}
	eCols := make(map[string]int)
	for i, name := range eHeader {
		eCols[name] = i
	}

	var employees []models.Employee
	for {
		record, err := eReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		id, _ := strconv.Atoi(record[eCols["id"]])
		desired, _ := strconv.ParseFloat(record[eCols["desired_hours"]], 64)
		emp := models.Employee{
			ID:           id,
			Name:         record[eCols["name"]],
			DesiredHours: desired,
		}
		for _, role := range strings.Split(record[eCols["roles"]], "|") {
			if trimmed := strings.TrimSpace(role); trimmed != "" {
				emp.Roles = append(emp.Roles, trimmed)
			}
		}
		if col, ok := eCols["unavailability"]; ok && record[col] != "" {
			emp.Unavailability = parseUnavailability(record[col])
		}
		employees = append(employees, emp)
	}

	sFile, err := salesFile.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open sales file"})
		return
	}
	defer sFile.Close()
	sReader := csv.NewReader(sFile)
	sHeader, err := sReader.Read()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read sales header"})
		return
	}
	sCols := make(map[string]int)
	for i, name := range sHeader {
		sCols[name] = i
	}
	week := models.WeekContext{Sales: map[int]float64{}}
	for {
		record, err := sReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		day, _ := strconv.Atoi(record[sCols["day"]])
		sales, _ := strconv.ParseFloat(record[sCols["sales"]], 64)
		if day >= 0 && day < 7 {
			week.Sales[day] = sales
		}
	}

	req := ScheduleRequest{WeekStart: weekStart, Employees: employees, Week: week}
	if _, result, ok := h.runGeneration(c, &req); ok {
		c.JSON(http.StatusOK, result)
	}
}

// parseUnavailability decodes "day:start-end" pairs separated by pipes,
// with minutes from midnight ("0:600-840|6:0-1440").
func parseUnavailability(raw string) []models.UnavailabilityWindow {
	var windows []models.UnavailabilityWindow
	for _, part := range strings.Split(raw, "|") {
		dayAndRange := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(dayAndRange) != 2 {
			continue
		}
		bounds := strings.SplitN(dayAndRange[1], "-", 2)
		if len(bounds) != 2 {
			continue
		}
		day, err1 := strconv.Atoi(dayAndRange[0])
		start, err2 := strconv.Atoi(bounds[0])
		end, err3 := strconv.Atoi(bounds[1])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		windows = append(windows, models.UnavailabilityWindow{Day: day, StartMinute: start, EndMinute: end})
	}
	return windows
}

// Login handles admin login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user database.MasterUser
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := auth.CreateToken(user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// GenerateKey creates a new API key using the HMAC strategy
func (h *Handler) GenerateKey(c *gin.Context) {
	var req struct {
		Name      string `json:"name"`
		RateLimit int    `json:"rate_limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	if req.RateLimit == 0 {
		req.RateLimit = 10000
	}

	// Generate key using HMAC
	key := auth.GenerateHMACKey(req.Name)

	// Create preview (e.g., sk_...****)
	preview := ""
	if len(key) > 8 {
		preview = key[:3] + "..." + key[len(key)-4:]
	} else {
		preview = "****"
	}

	apiKey := database.APIKey{
		Key:        key,
		Name:       req.Name,
		KeyPreview: preview,
		RateLimit:  req.RateLimit,
	}

	if err := h.DB.Create(&apiKey).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create key record"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name": req.Name,
		"key":  key,
	})
}

// ListKeys returns all API keys
func (h *Handler) ListKeys(c *gin.Context) {
	var keys []database.APIKey
	h.DB.Find(&keys)
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// RevokeKey deletes an API key
func (h *Handler) RevokeKey(c *gin.Context) {
	id := c.Param("id")
	if err := h.DB.Delete(&database.APIKey{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not delete key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key revoked"})
}

// UpdateKeyLimit updates the rate limit for a key
func (h *Handler) UpdateKeyLimit(c *gin.Context) {
	id := c.Param("id")
	var req struct {
		RateLimit int `json:"rate_limit" form:"rate_limit"`
	}

	// Try JSON first, then Form/Query
	if err := c.ShouldBindJSON(&req); err != nil {
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rate_limit is required"})
			return
		}
	}

	if req.RateLimit == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rate limit"})
		return
	}

	if err := h.DB.Model(&database.APIKey{}).Where("id = ?", id).Update("rate_limit", req.RateLimit).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not update key limit"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rate limit updated successfully"})
}

// GetUsage returns usage stats for a key
func (h *Handler) GetUsage(c *gin.Context) {
	id := c.Param("id")
	var usage []database.APIUsage
	h.DB.Where("key_id = ?", id).Order("date desc").Limit(30).Find(&usage)
	c.JSON(http.StatusOK, gin.H{"usage": usage})
}
