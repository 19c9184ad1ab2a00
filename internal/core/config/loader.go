package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"regexp"

	"github.com/pkg/errors"
	"github.com/signalfx/defaults"
	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"

	"github.com/pidpatrol/pidpatrol/internal/utils"
)

// LoadConfig reads the config file at configPath.  An empty path yields the
// default config.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return loadYAML(nil)
	}

	content, err := ioutil.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read config file %s", configPath)
	}

	conf, err := loadYAML(content)
	if err != nil {
		return nil, errors.WithMessage(err, configPath)
	}
	return conf, nil
}

func loadYAML(fileContent []byte) (*Config, error) {
	config := &Config{}

	preprocessedContent := preprocessConfig(fileContent)

	err := yaml.UnmarshalStrict(preprocessedContent, config)
	if err != nil {
		return nil, utils.YAMLErrorWithContext(preprocessedContent, err)
	}

	if err := defaults.Set(config); err != nil {
		panic(fmt.Sprintf("Config defaults are wrong types: %s", err))
	}

	return config.initialize()
}

var envVarRE = regexp.MustCompile(`\${\s*([\w-]+?)\s*}`)

// Replaces envvar syntax with the actual envvars
func preprocessConfig(content []byte) []byte {
	return envVarRE.ReplaceAllFunc(content, func(bs []byte) []byte {
		parts := envVarRE.FindSubmatch(bs)
		envvar := string(parts[1])

		val, ok := os.LookupEnv(envvar)
		if !ok {
			log.WithFields(log.Fields{
				"envvar": envvar,
			}).Warn("Config references unset envvar, using empty value")
		}

		return []byte(val)
	})
}
