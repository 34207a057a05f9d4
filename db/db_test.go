package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"smileslot/config"
	"smileslot/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		invalid bool
	}{
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"mysql data too long", &mysql.MySQLError{Number: 1406, Message: "Data too long"}, true},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout"}, false},
		{"bad connection", mysql.ErrInvalidConn, false},
		{"gorm duplicated key", fmt.Errorf("upsert: %w", gorm.ErrDuplicatedKey), true},
		{"sqlite not null", errors.New("constraint failed: NOT NULL constraint failed: emotion_opensmile.device_id (1299)"), true},
		{"non-finite timeline value", fmt.Errorf("sql: converting argument $6 type: %w", &json.UnsupportedValueError{Str: "NaN"}), true},
		{"dial refused", errors.New("dial tcp 127.0.0.1:3306: connect: connection refused"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify("upsert", tc.err)
			var invalid *InvalidKeyError
			var unavailable *StoreUnavailableError
			switch {
			case tc.invalid && !errors.As(err, &invalid):
				t.Fatalf("expected InvalidKeyError, got %T", err)
			case !tc.invalid && !errors.As(err, &unavailable):
				t.Fatalf("expected StoreUnavailableError, got %T", err)
			}
			if !errors.Is(err, tc.err) {
				t.Fatal("classified error must wrap the original")
			}
		})
	}
}

func TestClassifyKeepsClassifiedErrors(t *testing.T) {
	orig := &InvalidKeyError{Op: "upsert", Err: errors.New("empty device_id")}
	if got := Classify("retry", orig); got != orig {
		t.Fatalf("already classified error was rewrapped: %v", got)
	}
	if Classify("noop", nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	cfg := &config.Config{DBDriver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "slots.db")}
	gdb, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer Close(gdb)

	if err := Migrate(gdb); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if !gdb.Migrator().HasTable(&model.TimelineRecord{}) || !gdb.Migrator().HasTable(&model.AudioFile{}) {
		t.Fatal("expected both tables after migration")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(&config.Config{DBDriver: "postgres"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestMySQLDSN(t *testing.T) {
	cfg := &config.Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "3306", DBName: "slots"}
	want := "u:p@tcp(h:3306)/slots?charset=utf8mb4&parseTime=True&loc=Local"
	if got := MySQLDSN(cfg); got != want {
		t.Fatalf("MySQLDSN = %q", got)
	}
}
