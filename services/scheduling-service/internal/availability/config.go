package availability

import (
	"fmt"
	"time"

	"github.com/legalaid-connect/legalaid/libs/config"
)

// ConfigFromEnv reads BUSINESS_OPEN_HOUR, BUSINESS_CLOSE_HOUR, SLOT_MINUTES
// and BUSINESS_TIMEZONE on top of DefaultConfig.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	var err error
	if cfg.OpenHour, err = config.Int("BUSINESS_OPEN_HOUR", cfg.OpenHour); err != nil {
		return Config{}, err
	}
	if cfg.CloseHour, err = config.Int("BUSINESS_CLOSE_HOUR", cfg.CloseHour); err != nil {
		return Config{}, err
	}
	minutes, err := config.Int("SLOT_MINUTES", int(cfg.Step/time.Minute))
	if err != nil {
		return Config{}, err
	}
	cfg.Step = time.Duration(minutes) * time.Minute
	if tz := config.String("BUSINESS_TIMEZONE", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Config{}, fmt.Errorf("BUSINESS_TIMEZONE: %w", err)
		}
		cfg.Location = loc
	}
	return cfg, cfg.validate()
}
