package service

import (
	"net"
	"regexp"
	"time"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/model"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Scoring table. Kept in one place so thresholds can be tuned without
// touching call sites.
const (
	riskBaseScore         = 10
	riskMaxScore          = 100
	riskAbnormalThreshold = 80
	riskUntrustedIPWeight = 10
	riskBotAgentWeight    = 20
	riskAdminPathWeight   = 15
)

var riskEventWeights = map[string]int{
	config.EventCreate:   5,
	config.EventUse:      2,
	config.EventRefresh:  8,
	config.EventRevoke:   15,
	config.EventExpire:   5,
	config.EventAbnormal: 50,
}

var botAgentPattern = regexp.MustCompile(`(?i)(bot|crawler|spider|scraper|curl|wget|python-requests)`)
var adminPathPattern = regexp.MustCompile(`(?i)(/admin|/manage|/internal|/debug)`)

// Window thresholds for detectAbnormalUsage.
const (
	abnormalEventCount     = 100
	abnormalDistinctIPs    = 5
	abnormalDistinctAgents = 3
)

type RiskServiceConfig struct {
	TrustedNetworks []string
}

// RiskService scores token lifecycle events and answers queries over them.
// It is observational only; blocking is someone else's job.
type RiskService struct {
	Config   RiskServiceConfig
	Database *gorm.DB

	trusted []*net.IPNet
}

func NewRiskService(config RiskServiceConfig, database *gorm.DB) *RiskService {
	return &RiskService{
		Config:   config,
		Database: database,
	}
}

func (rs *RiskService) Init() error {
	for _, cidr := range rs.Config.TrustedNetworks {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			log.Warn().Str("cidr", cidr).Msg("Ignoring invalid trusted network")
			continue
		}
		rs.trusted = append(rs.trusted, network)
	}
	return nil
}

// RequestMeta carries the request attributes that feed scoring.
type RequestMeta struct {
	ClientIP   string
	UserAgent  string
	RequestURL string
}

type RecordEventInput struct {
	TokenID   string
	TokenType string
	EventType string
	UserID    int64
	ClientKey string
	Meta      RequestMeta
}

// scoreEvent is the single scoring function behind the fixed weight table.
func (rs *RiskService) scoreEvent(input RecordEventInput) (int, bool, string) {
	score := riskBaseScore
	score += riskEventWeights[input.EventType]

	if input.Meta.ClientIP != "" && !rs.trustedIP(input.Meta.ClientIP) {
		score += riskUntrustedIPWeight
	}
	if botAgentPattern.MatchString(input.Meta.UserAgent) {
		score += riskBotAgentWeight
	}
	if adminPathPattern.MatchString(input.Meta.RequestURL) {
		score += riskAdminPathWeight
	}

	if score > riskMaxScore {
		score = riskMaxScore
	}

	if score > riskAbnormalThreshold {
		return score, true, config.AbnormalHighRisk
	}
	return score, false, ""
}

func (rs *RiskService) trustedIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() || parsed.IsPrivate() {
		return true
	}
	for _, network := range rs.trusted {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// RecordEvent scores and persists one immutable token event. Failures are
// logged and swallowed by callers on the hot path; recording never blocks
// an operation from completing.
func (rs *RiskService) RecordEvent(input RecordEventInput) (*model.MonitorEvent, error) {
	score, abnormal, abnormalType := rs.scoreEvent(input)

	event := model.MonitorEvent{
		TokenID:      input.TokenID,
		TokenType:    input.TokenType,
		EventType:    input.EventType,
		UserID:       input.UserID,
		ClientKey:    input.ClientKey,
		ClientIP:     input.Meta.ClientIP,
		UserAgent:    input.Meta.UserAgent,
		RequestURL:   input.Meta.RequestURL,
		RiskScore:    score,
		Abnormal:     abnormal,
		AbnormalType: abnormalType,
		CreatedAt:    time.Now().Unix(),
	}

	if err := rs.Database.Create(&event).Error; err != nil {
		log.Error().Err(err).Str("tokenId", input.TokenID).Msg("Failed to record monitor event")
		return nil, ErrSystemError
	}

	if abnormal {
		log.Warn().Str("tokenId", input.TokenID).Int("score", score).Str("type", abnormalType).Msg("High risk token event")
	}

	return &event, nil
}

type EventFilter struct {
	TokenID      string
	UserID       int64
	ClientKey    string
	EventType    string
	AbnormalType string
	AbnormalOnly bool
	MinScore     int
	MaxScore     int
	From         int64
	To           int64
	Limit        int
	Offset       int
}

func (rs *RiskService) filtered(filter EventFilter) *gorm.DB {
	query := rs.Database.Model(&model.MonitorEvent{})
	if filter.TokenID != "" {
		query = query.Where("token_id = ?", filter.TokenID)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.ClientKey != "" {
		query = query.Where("client_key = ?", filter.ClientKey)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.AbnormalType != "" {
		query = query.Where("abnormal_type = ?", filter.AbnormalType)
	}
	if filter.AbnormalOnly {
		query = query.Where("abnormal = ?", true)
	}
	if filter.MinScore > 0 {
		query = query.Where("risk_score >= ?", filter.MinScore)
	}
	if filter.MaxScore > 0 {
		query = query.Where("risk_score <= ?", filter.MaxScore)
	}
	if filter.From > 0 {
		query = query.Where("created_at >= ?", filter.From)
	}
	if filter.To > 0 {
		query = query.Where("created_at <= ?", filter.To)
	}
	return query
}

func (rs *RiskService) SearchEvents(filter EventFilter) ([]model.MonitorEvent, int64, error) {
	var total int64
	if err := rs.filtered(filter).Count(&total).Error; err != nil {
		log.Error().Err(err).Msg("Failed to count monitor events")
		return nil, 0, ErrSystemError
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var events []model.MonitorEvent
	err := rs.filtered(filter).Order("created_at DESC, id DESC").Limit(limit).Offset(filter.Offset).Find(&events).Error
	if err != nil {
		log.Error().Err(err).Msg("Failed to search monitor events")
		return nil, 0, ErrSystemError
	}
	return events, total, nil
}

type BucketCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type EventStats struct {
	Total      int64         `json:"total"`
	Abnormal   int64         `json:"abnormal"`
	ByType     []BucketCount `json:"by_type"`
	TopUsers   []BucketCount `json:"top_users"`
	TopClients []BucketCount `json:"top_clients"`
	TopIPs     []BucketCount `json:"top_ips"`
	Histogram  []BucketCount `json:"histogram"`
}

// Stats aggregates counts, top-N offenders and a time histogram. The bucket
// layout is hourly for windows up to two days and daily beyond that.
func (rs *RiskService) Stats(filter EventFilter) (*EventStats, error) {
	stats := EventStats{}

	if err := rs.filtered(filter).Count(&stats.Total).Error; err != nil {
		log.Error().Err(err).Msg("Failed to aggregate monitor events")
		return nil, ErrSystemError
	}

	abnormalFilter := filter
	abnormalFilter.AbnormalOnly = true
	if err := rs.filtered(abnormalFilter).Count(&stats.Abnormal).Error; err != nil {
		return nil, ErrSystemError
	}

	groups := []struct {
		column string
		dest   *[]BucketCount
	}{
		{"event_type", &stats.ByType},
		{"user_id", &stats.TopUsers},
		{"client_key", &stats.TopClients},
		{"client_ip", &stats.TopIPs},
	}

	for _, group := range groups {
		var rows []BucketCount
		err := rs.filtered(filter).
			Select("CAST(" + group.column + " AS TEXT) AS key, COUNT(*) AS count").
			Group(group.column).
			Order("count DESC").
			Limit(10).
			Scan(&rows).Error
		if err != nil {
			log.Error().Err(err).Str("column", group.column).Msg("Failed to aggregate monitor events")
			return nil, ErrSystemError
		}
		*group.dest = rows
	}

	format := "%Y-%m-%d %H:00"
	if filter.From > 0 && filter.To > 0 && filter.To-filter.From > 2*24*3600 {
		format = "%Y-%m-%d"
	}

	var histogram []BucketCount
	err := rs.filtered(filter).
		Select("strftime(?, datetime(created_at, 'unixepoch')) AS key, COUNT(*) AS count", format).
		Group("key").
		Order("key ASC").
		Scan(&histogram).Error
	if err != nil {
		log.Error().Err(err).Msg("Failed to build event histogram")
		return nil, ErrSystemError
	}
	stats.Histogram = histogram

	return &stats, nil
}

type AbnormalUsage struct {
	TokenID           string   `json:"token_id"`
	WindowSeconds     int64    `json:"window_seconds"`
	EventCount        int64    `json:"event_count"`
	DistinctIPs       int64    `json:"distinct_ips"`
	DistinctAgents    int64    `json:"distinct_agents"`
	FrequencyAbnormal bool     `json:"frequency_abnormal"`
	IPAbnormal        bool     `json:"ip_abnormal"`
	UserAgentAbnormal bool     `json:"user_agent_abnormal"`
	IsAbnormal        bool     `json:"is_abnormal"`
	AbnormalTypes     []string `json:"abnormal_types,omitempty"`
}

// DetectAbnormalUsage flags frequency, IP-diversity and UA-diversity
// anomalies for one token within the window ending now.
func (rs *RiskService) DetectAbnormalUsage(tokenID string, window time.Duration) (*AbnormalUsage, error) {
	since := time.Now().Add(-window).Unix()

	base := rs.Database.Model(&model.MonitorEvent{}).Where("token_id = ? AND created_at >= ?", tokenID, since)

	usage := AbnormalUsage{
		TokenID:       tokenID,
		WindowSeconds: int64(window.Seconds()),
	}

	if err := base.Session(&gorm.Session{}).Count(&usage.EventCount).Error; err != nil {
		log.Error().Err(err).Msg("Failed to count events in window")
		return nil, ErrSystemError
	}
	if err := base.Session(&gorm.Session{}).Distinct("client_ip").Count(&usage.DistinctIPs).Error; err != nil {
		return nil, ErrSystemError
	}
	if err := base.Session(&gorm.Session{}).Distinct("user_agent").Count(&usage.DistinctAgents).Error; err != nil {
		return nil, ErrSystemError
	}

	usage.FrequencyAbnormal = usage.EventCount > abnormalEventCount
	usage.IPAbnormal = usage.DistinctIPs > abnormalDistinctIPs
	usage.UserAgentAbnormal = usage.DistinctAgents > abnormalDistinctAgents
	usage.IsAbnormal = usage.FrequencyAbnormal || usage.IPAbnormal || usage.UserAgentAbnormal

	if usage.FrequencyAbnormal {
		usage.AbnormalTypes = append(usage.AbnormalTypes, config.AbnormalFrequency)
	}
	if usage.IPAbnormal {
		usage.AbnormalTypes = append(usage.AbnormalTypes, config.AbnormalIP)
	}
	if usage.UserAgentAbnormal {
		usage.AbnormalTypes = append(usage.AbnormalTypes, config.AbnormalUserAgent)
	}

	return &usage, nil
}
