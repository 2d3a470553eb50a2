package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultHistoryFileName = "downloaded_files.json"
	DefaultLockFileName    = "sitereports.lock"

	DefaultBundlePrefix = "Sunelia_Rapports_indiv_pour_groupe_"
	DefaultReportSuffix = ".xlsx"

	DefaultBatchSize      = 3
	DefaultBatchDelay     = 30 * time.Second
	DefaultMaxTrendPoints = 15
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.download_dir", "./downloads")
	v.SetDefault("paths.history_file", "")
	v.SetDefault("paths.db_path", "./downloads/sitereports.duckdb")
	v.SetDefault("paths.lock_file", "")
	v.SetDefault("paths.metrics_file", "")

	v.SetDefault("portal.enabled", true)
	v.SetDefault("portal.login_url", "https://crm.secureholiday.net/crm/")
	v.SetDefault("portal.reports_url", "https://crm.secureholiday.net/crm/Dashboards/BiReportExtract/Index/FR")
	v.SetDefault("portal.login", "")
	v.SetDefault("portal.password", "")
	v.SetDefault("portal.login_field", "login")
	v.SetDefault("portal.password_field", "password")
	v.SetDefault("portal.link_marker", "download")
	v.SetDefault("portal.timeout", 60*time.Second)

	v.SetDefault("bundle.prefix", DefaultBundlePrefix)
	v.SetDefault("bundle.report_suffix", DefaultReportSuffix)

	v.SetDefault("smtp.host", "smtp.office365.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.auth", "login")
	v.SetDefault("smtp.timeout", 30*time.Second)

	v.SetDefault("delivery.recipients", []string{})
	v.SetDefault("delivery.batch_size", DefaultBatchSize)
	v.SetDefault("delivery.batch_delay", DefaultBatchDelay)
	v.SetDefault("delivery.subject_prefix", "Rapport Sunelia - ")
	v.SetDefault("delivery.greeting", "Bonjour,")
	v.SetDefault("delivery.signature", "Cordialement,\nSunelia")
	v.SetDefault("delivery.skip_delivered", true)

	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.charts", true)
	v.SetDefault("enrichment.animated", false)
	v.SetDefault("enrichment.max_sheets", 3)
	v.SetDefault("enrichment.max_tail_rows", 5)
	v.SetDefault("enrichment.max_trend_points", DefaultMaxTrendPoints)
	v.SetDefault("enrichment.frame_duration", 120*time.Millisecond)
}
