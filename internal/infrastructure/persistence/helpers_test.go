package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newSQLiteDB opens an in-memory database with the billing tables. A single
// connection keeps every query on the same in-memory database.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), GormConfig(gormlogger.Default.LogMode(gormlogger.Silent)))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.UnitModel{},
		&models.BillModel{},
		&models.JournalReferenceModel{},
		&models.QueueTrackerModel{},
	))
	return db
}

type billOpt func(*billing.NewBillInput)

func withSemester(s int) billOpt { return func(in *billing.NewBillInput) { in.Semester = s } }
func withMajor(m string) billOpt { return func(in *billing.NewBillInput) { in.Major = m } }
func withIssue(id int64) billOpt { return func(in *billing.NewBillInput) { in.BillIssueID = id } }
func withService(id int64) billOpt { return func(in *billing.NewBillInput) { in.ServiceTypeID = id } }
func withUnit(code string) billOpt { return func(in *billing.NewBillInput) { in.UnitCode = code } }
func withIdentity(nim string) billOpt { return func(in *billing.NewBillInput) { in.IdentityNumber = nim } }

func seedBill(t *testing.T, repo *GormBillRepository, opts ...billOpt) *billing.Bill {
	t.Helper()
	due := time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)
	in := billing.NewBillInput{
		BillIssueID:    7,
		BillIssue:      "UKT Ganjil 2024",
		BillGroupID:    1,
		Name:           "Siti Aminah",
		IdentityNumber: "1301201234",
		Semester:       3,
		Major:          "Teknik Informatika",
		UnitCode:       "IF",
		ServiceTypeID:  billing.PrimaryServiceTypeID,
		Amount:         5_000_000,
		DueDate:        &due,
	}
	for _, opt := range opts {
		opt(&in)
	}

	bill, err := billing.NewBill(in)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), bill))
	return bill
}
