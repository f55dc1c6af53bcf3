package migration

import (
	"strings"
	"testing"
)

func TestOptionsValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{"defaults are valid", func(o *Options) {}, ""},
		{"bad oversize policy", func(o *Options) { o.Oversize = "explode" }, "invalid oversize policy"},
		{"bad masked-field policy", func(o *Options) { o.MaskedFields = "redact" }, "invalid masked-field policy"},
		{"bad partial-failure strategy", func(o *Options) { o.PartialFailure = "rollback" }, "invalid partial-failure strategy"},
		{"bad duplicate policy", func(o *Options) { o.Duplicates = "merge" }, "invalid duplicate policy"},
		{"negative retries", func(o *Options) { o.Retry.MaxRetries = -1 }, "must not be negative"},
		{"single item above window budget", func(o *Options) {
			o.Throttle.MaxBytesPerWindow = 1 << 20
			o.Throttle.MaxSingleItemBytes = 2 << 20
		}, "must not exceed maxBytesPerWindow"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := &Options{}
			o.applyDefaults()
			tc.mutate(o)
			err := o.validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("validate() = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestOptionsDefaultItemCapFitsWindow(t *testing.T) {
	o := &Options{}
	o.Throttle.MaxBytesPerWindow = 1 << 20
	o.applyDefaults()
	if o.Throttle.MaxSingleItemBytes != 1<<20 {
		t.Errorf("MaxSingleItemBytes = %d, want clamped to the window budget", o.Throttle.MaxSingleItemBytes)
	}
	if err := o.validate(); err != nil {
		t.Errorf("validate() after defaults = %v", err)
	}
}
