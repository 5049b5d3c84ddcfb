package database

import (
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// APIKey represents the api_keys table
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Key        string     `gorm:"unique;not null" json:"key"`
	Name       string     `gorm:"not null" json:"name"`
	KeyPreview string     `json:"key_preview"`
	RateLimit  int        `gorm:"default:10000" json:"rate_limit"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsed   *time.Time `json:"last_used"`
}

// APIUsage represents the api_usage table
type APIUsage struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	KeyID          uint   `gorm:"uniqueIndex:idx_key_date;not null" json:"key_id"`
	Date           string `gorm:"uniqueIndex:idx_key_date;not null" json:"date"`
	RequestCount   int    `gorm:"default:0" json:"request_count"`
	TotalRuns      int    `gorm:"default:0" json:"total_runs"`
	TotalShifts    int    `gorm:"default:0" json:"total_shifts"`
	TotalEmployees int    `gorm:"default:0" json:"total_employees"`
}

// MasterUser represents the master_users table
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// ScheduleWeek records one persisted generation run for a week.
type ScheduleWeek struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	WeekStart string    `gorm:"uniqueIndex;not null" json:"week_start"`
	Actor     string    `json:"actor"`
	TotalCost float64   `json:"total_cost"`
	Warnings  string    `json:"warnings"`
	CreatedAt time.Time `json:"created_at"`
}

// StoredShift is one persisted shift row of a generated week.
type StoredShift struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	WeekStart    string    `gorm:"index;not null" json:"week_start"`
	EmployeeID   *int      `json:"employee_id"`
	EmployeeName string    `json:"employee_name"`
	Role         string    `gorm:"not null" json:"role"`
	RoleGroup    string    `json:"role_group"`
	Day          int       `json:"day"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	HourlyRate   float64   `json:"hourly_rate"`
	Cost         float64   `json:"cost"`
	Location     string    `json:"location"`
	Notes        string    `json:"notes"`
	Locked       bool      `json:"locked"`
}

// InitDB initializes the database connection and migrates the schema
func InitDB() *gorm.DB {
	var db *gorm.DB
	var err error

	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	} else {
		dbPath := os.Getenv("DATA_PATH")
		if dbPath == "" {
			dbPath = "staffing.db"
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	}

	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	// Auto Migration
	db.AutoMigrate(&APIKey{}, &APIUsage{}, &MasterUser{}, &ScheduleWeek{}, &StoredShift{})

	return db
}

// ReplaceWeek atomically swaps the persisted schedule for a week: the
// old shifts go and the new ones land in one transaction, so readers
// never observe a half-written week.
func ReplaceWeek(db *gorm.DB, week ScheduleWeek, shifts []StoredShift) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("week_start = ?", week.WeekStart).Delete(&StoredShift{}).Error; err != nil {
			return err
		}
		if err := tx.Where("week_start = ?", week.WeekStart).Delete(&ScheduleWeek{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&week).Error; err != nil {
			return err
		}
		if len(shifts) == 0 {
			return nil
		}
		for i := range shifts {
			shifts[i].ID = 0
			shifts[i].WeekStart = week.WeekStart
		}
		return tx.Create(&shifts).Error
	})
}

// LoadWeek returns the persisted schedule for a week start date.
func LoadWeek(db *gorm.DB, weekStart string) (ScheduleWeek, []StoredShift, error) {
	var week ScheduleWeek
	if err := db.Where("week_start = ?", weekStart).First(&week).Error; err != nil {
		return ScheduleWeek{}, nil, err
	}
	var shifts []StoredShift
	if err := db.Where("week_start = ?", weekStart).Order("start asc").Find(&shifts).Error; err != nil {
		return ScheduleWeek{}, nil, err
	}
	return week, shifts, nil
}
