package models

import "time"

// RecommendationType represents the kind of advisory change proposed
type RecommendationType string

const (
	RecommendationResourceAdjustment RecommendationType = "resource_adjustment"
	RecommendationScalingPolicy      RecommendationType = "scaling_policy"
	RecommendationQoSChange          RecommendationType = "qos_change"
)

// ConfigFragment is the subset of an agent config a recommendation touches.
// Nil fields are left unchanged when the recommendation is applied.
type ConfigFragment struct {
	CPUMaxMillicores   *int64
	MemoryMaxBytes     *int64
	ScaleUpThreshold   *float64
	ScaleDownThreshold *float64
	QoS                *QoSClass
}

// Impact estimates the consequences of applying a recommendation
type Impact struct {
	Performance string
	Cost        string
	Stability   string
}

// Recommendation is an advisory, never-auto-applied suggestion derived
// from historical usage analysis
type Recommendation struct {
	ID          string
	AgentID     string
	Type        RecommendationType
	Current     ConfigFragment
	Recommended ConfigFragment
	Impact      Impact
	Confidence  float64 // 0-1
	Reasoning   []string
	CreatedAt   time.Time
}
