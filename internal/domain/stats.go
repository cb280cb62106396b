package domain

import "time"

// OrderStats summarises the durable table.
type OrderStats struct {
	Total           int64   `json:"total"`
	Active          int64   `json:"active"`
	Critical        int64   `json:"critical"`
	AverageDaysOpen float64 `json:"average_days_open"`
}

// MonitorStats combines store statistics with the running loop's counters.
type MonitorStats struct {
	OrderStats
	CacheSize       int       `json:"cache_size"`
	CyclesCompleted int64     `json:"cycles_completed"`
	LastCycleAt     time.Time `json:"last_cycle_at"`
	LastCycleWrites int       `json:"last_cycle_writes"`
}
