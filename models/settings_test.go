package models

import (
	"fmt"
	"testing"
	"time"
)

func TestToggleCategoryVisibility(t *testing.T) {
	s := NewUserSettings()

	if s.IsCategoryHidden("salary") {
		t.Error("nothing is hidden initially")
	}

	s.ToggleCategoryVisibility("salary")
	if !s.IsCategoryHidden("salary") {
		t.Error("first toggle should hide")
	}

	s.ToggleCategoryVisibility("salary")
	if s.IsCategoryHidden("salary") {
		t.Error("second toggle should unhide")
	}
}

func TestAddBackupEntry_Bounded(t *testing.T) {
	s := NewUserSettings()

	for i := 0; i < MaxBackupHistory+5; i++ {
		s.AddBackupEntry(BackupEntry{
			Timestamp: time.Now(),
			FilePath:  fmt.Sprintf("/backups/%d.db", i),
			Success:   true,
		})
	}

	if len(s.BackupHistory) != MaxBackupHistory {
		t.Fatalf("history length = %d, want %d", len(s.BackupHistory), MaxBackupHistory)
	}
	// The oldest entries are evicted; the newest survive.
	if s.BackupHistory[0].FilePath != "/backups/5.db" {
		t.Errorf("oldest surviving entry = %s, want /backups/5.db", s.BackupHistory[0].FilePath)
	}
	if s.BackupHistory[MaxBackupHistory-1].FilePath != "/backups/14.db" {
		t.Errorf("newest entry = %s, want /backups/14.db", s.BackupHistory[MaxBackupHistory-1].FilePath)
	}
}

func TestLastSuccessfulBackup(t *testing.T) {
	s := NewUserSettings()
	if s.LastSuccessfulBackup() != nil {
		t.Error("empty history has no successful backup")
	}

	s.AddBackupEntry(BackupEntry{FilePath: "/a.db", Success: true})
	s.AddBackupEntry(BackupEntry{FilePath: "/b.db", Success: false, ErrorMessage: "disk full"})

	last := s.LastSuccessfulBackup()
	if last == nil || last.FilePath != "/a.db" {
		t.Errorf("got %+v, want /a.db", last)
	}

	s.AddBackupEntry(BackupEntry{FilePath: "/c.db", Success: true})
	if last := s.LastSuccessfulBackup(); last == nil || last.FilePath != "/c.db" {
		t.Errorf("got %+v, want /c.db", last)
	}
}

func TestNewFlow(t *testing.T) {
	f := NewFlow("salary")
	if f.ID == "" {
		t.Error("new flow needs an id")
	}
	if f.CategoryID != "salary" {
		t.Errorf("category = %s", f.CategoryID)
	}
	if f.CustomFields == nil || f.LinkedFlows == nil {
		t.Error("collections should be initialized")
	}
	if NewFlow("salary").ID == f.ID {
		t.Error("ids should be unique")
	}
}

func TestDefaultCategories(t *testing.T) {
	cats := DefaultCategories()
	if len(cats) != 9 {
		t.Fatalf("got %d default categories, want 9", len(cats))
	}

	byID := make(map[string]Category, len(cats))
	for _, c := range cats {
		if c.ID == "" || c.Name == "" {
			t.Errorf("category missing id or name: %+v", c)
		}
		if _, dup := byID[c.ID]; dup {
			t.Errorf("duplicate category id %s", c.ID)
		}
		byID[c.ID] = c
	}

	if c := byID["cash_donations"]; !c.TaxDeduction.Allowed || !c.TaxDeduction.Default {
		t.Error("cash donations should default to deductible")
	}
	if c := byID["medical"]; !c.TaxDeduction.Allowed || c.TaxDeduction.Default {
		t.Error("medical should be deductible but not by default")
	}
	if c := byID["salary"]; c.FlowType != Income {
		t.Error("salary is income")
	}
	if c := byID["taxes_paid"]; c.FlowType != Expense {
		t.Error("taxes paid is expense")
	}
}
