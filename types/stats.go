package types

import (
	"time"
)

// CryptStats holds counters of the crypt primitive
type CryptStats struct {
	TotalEncrypts   uint64 `json:"totalEncrypts" bson:"totalEncrypts"`
	TotalDecrypts   uint64 `json:"totalDecrypts" bson:"totalDecrypts"`
	TotalToggles    uint64 `json:"totalToggles" bson:"totalToggles"`
	DetectionMisses uint64 `json:"detectionMisses" bson:"detectionMisses"`
}

// FieldStats holds statistics about document field transforms
type FieldStats struct {
	TotalSaves      uint64    `json:"totalSaves" bson:"totalSaves"`
	TotalReads      uint64    `json:"totalReads" bson:"totalReads"`
	TotalFailures   uint64    `json:"totalFailures" bson:"totalFailures"`
	LastSaveTime    time.Time `json:"lastSaveTime" bson:"lastSaveTime"`
	LastReadTime    time.Time `json:"lastReadTime" bson:"lastReadTime"`
	LastOpTime      time.Time `json:"lastOpTime" bson:"lastOpTime"`
	LastFailureTime time.Time `json:"lastFailureTime" bson:"lastFailureTime"`
}

// HookParity counts how often one registered hook ran in each phase
type HookParity struct {
	Path  string `json:"path" bson:"path"`
	Saves uint64 `json:"saves" bson:"saves"`
	Reads uint64 `json:"reads" bson:"reads"`
}

// Balanced reports whether every save was matched by a read
func (p HookParity) Balanced() bool {
	return p.Saves == p.Reads
}

// Stats represents service statistics
type Stats struct {
	CryptStats CryptStats `json:"cryptStats"`
	FieldStats FieldStats `json:"fieldStats"`
}
