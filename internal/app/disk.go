package app

import "github.com/shirou/gopsutil/v3/disk"

type diskStats struct {
	TotalBytes     uint64  `json:"total_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedPercent    float64 `json:"used_percent"`
}

// diskUsage reports usage of the filesystem holding path, or nil on error.
func diskUsage(path string) *diskStats {
	u, err := disk.Usage(path)
	if err != nil {
		return nil
	}
	return &diskStats{
		TotalBytes:     u.Total,
		UsedBytes:      u.Used,
		AvailableBytes: u.Free,
		UsedPercent:    u.UsedPercent,
	}
}
