// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/mfrec/base"
	"github.com/gorse-io/mfrec/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

const envPrefix = "MFREC"

// Config is the configuration for a training and evaluation run.
type Config struct {
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Model    ModelConfig    `mapstructure:"model"`
	Evaluate EvaluateConfig `mapstructure:"evaluate"`
}

// DatasetConfig locates the MovieLens files and sizes the rating matrix.
type DatasetConfig struct {
	Dir       string `mapstructure:"dir" validate:"required"`
	Catalog   string `mapstructure:"catalog" validate:"required"`
	Train     string `mapstructure:"train" validate:"required"`
	Test      string `mapstructure:"test" validate:"required"`
	UserCount int    `mapstructure:"user_count" validate:"gt=0"`
	ItemCount int    `mapstructure:"item_count" validate:"gt=0"`
}

type ModelConfig struct {
	NFactors        int           `mapstructure:"n_factors" validate:"gt=0"`
	Lr              float64       `mapstructure:"lr" validate:"gt=0"`
	Reg             float64       `mapstructure:"reg" validate:"gte=0"`
	NEpochs         int           `mapstructure:"n_epochs" validate:"gte=0"`
	RandomState     int64         `mapstructure:"random_state"`
	CheckDivergence bool          `mapstructure:"check_divergence"`
	Verbose         int           `mapstructure:"verbose" validate:"gt=0"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

type EvaluateConfig struct {
	TopK        int `mapstructure:"top_k" validate:"gt=0"`
	NJobs       int `mapstructure:"n_jobs" validate:"gt=0"`
	ExampleUser int `mapstructure:"example_user" validate:"gt=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Dir:       "ml-100k",
			Catalog:   "u.item",
			Train:     "ua.base",
			Test:      "ua.test",
			UserCount: 943,
			ItemCount: 1682,
		},
		Model: ModelConfig{
			NFactors:    5,
			Lr:          0.001,
			Reg:         0.01,
			NEpochs:     50,
			RandomState: 0,
			Verbose:     10,
		},
		Evaluate: EvaluateConfig{
			TopK:        5,
			NJobs:       1,
			ExampleUser: 1,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [dataset]
	v.SetDefault("dataset.dir", defaultConfig.Dataset.Dir)
	v.SetDefault("dataset.catalog", defaultConfig.Dataset.Catalog)
	v.SetDefault("dataset.train", defaultConfig.Dataset.Train)
	v.SetDefault("dataset.test", defaultConfig.Dataset.Test)
	v.SetDefault("dataset.user_count", defaultConfig.Dataset.UserCount)
	v.SetDefault("dataset.item_count", defaultConfig.Dataset.ItemCount)
	// [model]
	v.SetDefault("model.n_factors", defaultConfig.Model.NFactors)
	v.SetDefault("model.lr", defaultConfig.Model.Lr)
	v.SetDefault("model.reg", defaultConfig.Model.Reg)
	v.SetDefault("model.n_epochs", defaultConfig.Model.NEpochs)
	v.SetDefault("model.random_state", defaultConfig.Model.RandomState)
	v.SetDefault("model.check_divergence", defaultConfig.Model.CheckDivergence)
	v.SetDefault("model.verbose", defaultConfig.Model.Verbose)
	v.SetDefault("model.timeout", defaultConfig.Model.Timeout)
	// [evaluate]
	v.SetDefault("evaluate.top_k", defaultConfig.Evaluate.TopK)
	v.SetDefault("evaluate.n_jobs", defaultConfig.Evaluate.NJobs)
	v.SetDefault("evaluate.example_user", defaultConfig.Evaluate.ExampleUser)
}

// bindEnv binds every key to MFREC_<SECTION>_<KEY>, e.g. MFREC_MODEL_N_FACTORS.
func bindEnv(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		env := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a TOML file and environment variables.
// An empty path loads defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	if err := bindEnv(v); err != nil {
		return nil, errors.Trace(err)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config file %s", path)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, base.Configurationf("failed to decode config: %v", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")
	validate = validator.New(validator.WithRequiredStructEnabled())
	// report keys as they are written in the config file
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("mapstructure")
	})
	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}
}

func (config *Config) Validate() error {
	if err := validate.Struct(config); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return errors.Trace(err)
		}
		messages := lo.Map(fieldErrors, func(fieldError validator.FieldError, _ int) string {
			return fieldError.Translate(translator)
		})
		return base.Configurationf("invalid config: %s", strings.Join(messages, "; "))
	}
	if config.Evaluate.ExampleUser > config.Dataset.UserCount {
		return base.Configurationf("example user %d is out of range [1, %d]",
			config.Evaluate.ExampleUser, config.Dataset.UserCount)
	}
	return nil
}

// Params converts the model section to hyper-parameters of SGD.
func (config *ModelConfig) Params() model.Params {
	return model.Params{
		model.NFactors:    config.NFactors,
		model.Lr:          config.Lr,
		model.Reg:         config.Reg,
		model.NEpochs:     config.NEpochs,
		model.RandomState: config.RandomState,
	}
}
