// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "DefectScan-Go")
	viper.SetDefault("main.loglevel", "info")

	viper.SetDefault("gateway.apiurl", "http://localhost:8000")
	viper.SetDefault("gateway.timeoutseconds", 45)
	viper.SetDefault("gateway.inference.provider", InferenceProviderRemote)
	viper.SetDefault("gateway.inference.mockdelayms", 1500)

	viper.SetDefault("state.path", ".")

	viper.SetDefault("demoserver.listen", ":8000")
	viper.SetDefault("demoserver.datapath", "demodata")
}
