package config

// MailConfig configures the SMTP mailer. An empty Host selects the log-only
// mailer, which is what development setups use.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func LoadMailConfig() MailConfig {
	return MailConfig{
		Host:     envStr("SMTP_HOST", ""),
		Port:     envInt("SMTP_PORT", 587),
		Username: envStr("SMTP_USERNAME", ""),
		Password: envStr("SMTP_PASSWORD", ""),
		From:     envStr("MAIL_FROM", "no-reply@staymarket.local"),
	}
}
