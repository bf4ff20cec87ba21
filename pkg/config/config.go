package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"reflect"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Normalizer is implemented by configs that fill defaults after every (re)load.
type Normalizer interface {
	Normalize()
}

// LoadAndWatch reads config/{service}.yaml (or ./{service}.yaml), applies env overrides and
// hot-reloads the file into out on change.
//
// Env overrides use the upper-cased service name as prefix, e.g. for "vend-service"
// VEND_SERVICE_HTTP_ADDR overrides http.addr. A .env file in the working dir is loaded first.
func LoadAndWatch(service string, out interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	if err := load(v, service, out); err != nil {
		return nil, err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("[%s] config file changed: %s", service, e.Name)
		if err := unmarshal(v, out); err != nil {
			log.Printf("[%s] reload config error: %v", service, err)
			return
		}
		log.Printf("[%s] config reloaded OK", service)
	})

	return v, nil
}

// LoadFile reads one explicit file without watching it.
func LoadFile(path string, service string, out interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := load(v, service, out); err != nil {
		return nil, err
	}
	return v, nil
}

func load(v *viper.Viper, service string, out interface{}) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[%s] .env ignored: %v", service, err)
	}

	prefix := strings.ToUpper(strings.ReplaceAll(service, "-", "_"))
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return err
	}
	if err := unmarshal(v, out); err != nil {
		return err
	}
	log.Printf("[%s] config loaded from %s", service, v.ConfigFileUsed())
	return nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook lets yaml write amounts as numbers or strings; both land in decimal.Decimal
// without a float round trip for the string form.
func decimalHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType {
		return data, nil
	}
	switch d := data.(type) {
	case decimal.Decimal:
		return d, nil
	case string:
		if d == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(d)
	case int, int64, int32, uint, uint64, uint32, float32, float64:
		return decimal.NewFromString(fmt.Sprint(d))
	default:
		return data, nil
	}
}

func unmarshal(v *viper.Viper, out interface{}) error {
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decimalHook,
	))
	if err := v.Unmarshal(out, hook); err != nil {
		return err
	}
	if n, ok := out.(Normalizer); ok {
		n.Normalize()
	}
	return nil
}
