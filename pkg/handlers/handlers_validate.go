package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/staffing-engine-go/pkg/policy"
)

// ValidateInput checks a scheduling request without running it.
func (h *Handler) ValidateInput(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	if _, err := time.Parse(weekDateLayout, req.WeekStart); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": "week_start must be YYYY-MM-DD"})
		return
	}

	if len(req.Employees) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": "At least one employee is required",
		})
		return
	}

	// Check for duplicate IDs
	empIDs := make(map[int]bool)
	for _, emp := range req.Employees {
		if empIDs[emp.ID] {
			c.JSON(http.StatusOK, gin.H{"valid": false, "error": "Duplicate employee ID: " + strconv.Itoa(emp.ID)})
			return
		}
		empIDs[emp.ID] = true
	}

	withRoles := 0
	for _, emp := range req.Employees {
		if len(emp.Roles) > 0 {
			withRoles++
		}
	}
	if withRoles == 0 {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": "No employee has any role assigned"})
		return
	}

	if len(req.Week.Sales) == 0 {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": "Week sales forecast is required"})
		return
	}
	for day := range req.Week.Sales {
		if day < 0 || day > 6 {
			c.JSON(http.StatusOK, gin.H{"valid": false, "error": "Sales day index out of range: " + strconv.Itoa(day)})
			return
		}
	}

	eligibleRoles := 0
	if len(req.Policy) > 0 {
		pol, err := policy.FromJSON(req.Policy)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"valid": false, "error": "Invalid policy document: " + err.Error()})
			return
		}
		eligibleRoles = len(pol.EligibleRoles())
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"stats": gin.H{
			"employee_count":    len(req.Employees),
			"employees_w_roles": withRoles,
			"sales_days":        len(req.Week.Sales),
			"modifier_count":    len(req.Week.Modifiers),
			"policy_role_count": eligibleRoles,
		},
	})
}
