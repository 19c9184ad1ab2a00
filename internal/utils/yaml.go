package utils

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v2"
)

// YAMLNameOfField returns the YAML key that is used for the given struct
// field.  It does this by actually serializing the field and parsing the
// output string.  If the field has no key (e.g. if the `yaml:"-"` tag is set,
// this will return an empty string.
func YAMLNameOfField(field reflect.StructField) string {
	if strings.HasPrefix(field.Tag.Get("yaml"), ",inline") {
		return ""
	}
	tmp := reflect.New(reflect.StructOf([]reflect.StructField{field})).Elem()
	asYaml, _ := yaml.Marshal(tmp.Interface())
	parts := strings.SplitN(string(asYaml), ":", 2)
	if parts[0] == string(asYaml) {
		return ""
	}
	return parts[0]
}

var lineNumberRE = regexp.MustCompile(`line (\d+): `)

// ParseLineNumberFromYAMLError takes an error message nested in yaml.TypeError
// and returns a line number if indicated in the error message.  This is pretty
// hacky but is the only way to actually get at the line number in the standard
// yaml package.
func ParseLineNumberFromYAMLError(e string) int {
	match := lineNumberRE.FindStringSubmatch(e)
	if len(match) > 0 {
		asInt, err := strconv.Atoi(match[1])
		if err != nil {
			return 0
		}
		return asInt
	}
	return 0
}

// YAMLErrorWithContext returns err annotated with the lines of content around
// the line the error refers to, if it names one.
func YAMLErrorWithContext(content []byte, err error) error {
	line := ParseLineNumberFromYAMLError(err.Error())
	if line == 0 {
		return err
	}

	lines := strings.Split(string(content), "\n")
	var ctx string
	for i := line - 3; i <= line+1; i++ {
		if i < 0 || i >= len(lines) {
			continue
		}
		marker := "  "
		if i == line-1 {
			marker = "> "
		}
		ctx += fmt.Sprintf("%s%4d | %s\n", marker, i+1, lines[i])
	}
	return fmt.Errorf("%v\n\n%s", err, ctx)
}
