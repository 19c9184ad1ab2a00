package config

import (
	"fmt"
	"reflect"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/pidpatrol/pidpatrol/internal/utils"
)

// ToString converts a config struct to a pseudo-yaml text outut.  If a struct
// field has the 'neverLog' tag, its value will be replaced by asterisks, or
// completely omitted if the tag value is 'omit'.
func ToString(conf interface{}) string {
	if conf == nil {
		return ""
	}

	confValue := reflect.Indirect(reflect.ValueOf(conf))
	if !confValue.IsValid() {
		return ""
	}
	confStruct := confValue.Type()

	var out string
	for i := 0; i < confStruct.NumField(); i++ {
		field := confStruct.Field(i)

		// PkgPath is empty only for exported fields
		if field.PkgPath != "" {
			continue
		}

		fieldName := utils.YAMLNameOfField(field)
		if fieldName == "" {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			out += fieldName + ":\n"
			out += utils.IndentLines(ToString(confValue.Field(i).Interface()), 2)
			continue
		}

		neverLogVal, neverLogPresent := field.Tag.Lookup("neverLog")
		var val string
		if neverLogPresent {
			if neverLogVal == "omit" {
				continue
			}
			if confValue.Field(i).IsZero() {
				val = ""
			} else {
				val = "***************"
			}
		} else {
			asYaml, _ := yaml.Marshal(confValue.Field(i).Interface())
			val = strings.Trim(string(asYaml), "\n")
		}

		separator := " "
		if strings.Contains(val, "\n") {
			separator = "\n"
			val = utils.IndentLines(val, 2)
		}

		out += fmt.Sprintf("%s:%s%s\n", fieldName, separator, val)
	}
	return out
}
