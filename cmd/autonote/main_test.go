package main

import (
	"testing"
	"time"
)

func TestDateWindow(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name      string
		since     string
		until     string
		wantSince time.Time
		wantUntil time.Time
		wantErr   bool
	}{
		{"open", "", "", time.Time{}, time.Time{}, false},
		{"since only", "2024-03-01", "", time.Date(2024, 3, 1, 0, 0, 0, 0, loc), time.Time{}, false},
		{"until covers the day", "", "2024-03-31", time.Time{}, time.Date(2024, 3, 31, 23, 59, 59, 999999999, loc), false},
		{"same day", "2024-03-01", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, loc), time.Date(2024, 3, 1, 23, 59, 59, 999999999, loc), false},
		{"reversed", "2024-03-02", "2024-03-01", time.Time{}, time.Time{}, true},
		{"bad since", "03/01/2024", "", time.Time{}, time.Time{}, true},
		{"bad until", "", "yesterday", time.Time{}, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			since, until, err := dateWindow(tt.since, tt.until, loc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !since.Equal(tt.wantSince) || !until.Equal(tt.wantUntil) {
				t.Errorf("window = [%v, %v], want [%v, %v]", since, until, tt.wantSince, tt.wantUntil)
			}
		})
	}
}
