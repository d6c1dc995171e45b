package conf

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags binds each named command line flag to its configuration key, so
// that Sync lets set flags override the config file and environment.
func BindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag %s", name)
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
