package steps

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Options tunes the built-in graph. Values usually come from the step
// options map in the config file; zero values fall back to defaults.
type Options struct {
	// UserID and AccessToken authenticate gateway calls when the session
	// itself carries no credentials.
	UserID      string `mapstructure:"user_id"`
	AccessToken string `mapstructure:"access_token"`

	// LookbackDays bounds the transaction date range fetched for analysis.
	LookbackDays int `mapstructure:"lookback_days"`

	// InvertSign flips transaction amounts for aggregators that report
	// outflows as positive numbers.
	InvertSign bool `mapstructure:"invert_sign"`

	// SampleRows is the maximum number of individual transactions echoed
	// back in the final answer.
	SampleRows int `mapstructure:"sample_rows"`

	// PromptRows caps how many normalized rows are serialized into the
	// analysis prompt.
	PromptRows int `mapstructure:"prompt_rows"`
}

const (
	defaultLookbackDays = 30
	defaultSampleRows   = 5
	defaultPromptRows   = 50
)

// DecodeOptions builds Options from an untyped option map.
func DecodeOptions(raw map[string]any) (Options, error) {
	var opts Options
	if err := mapstructure.Decode(raw, &opts); err != nil {
		return Options{}, fmt.Errorf("invalid step options: %w", err)
	}
	return opts.withDefaults(), nil
}

func (o Options) withDefaults() Options {
	if o.LookbackDays <= 0 {
		o.LookbackDays = defaultLookbackDays
	}
	if o.SampleRows <= 0 {
		o.SampleRows = defaultSampleRows
	}
	if o.PromptRows <= 0 {
		o.PromptRows = defaultPromptRows
	}
	return o
}

func (o Options) lookback() time.Duration {
	return time.Duration(o.LookbackDays) * 24 * time.Hour
}
