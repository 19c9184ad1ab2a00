package selfdescribe

import (
	"encoding/json"
	"reflect"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pidpatrol/pidpatrol/internal/utils"
)

// fieldMetadata describes one config key
type fieldMetadata struct {
	YAMLName      string          `json:"yamlName"`
	Type          string          `json:"type"`
	Default       interface{}     `json:"default"`
	Required      bool            `json:"required"`
	Validation    []string        `json:"validation,omitempty"`
	Secret        bool            `json:"secret,omitempty"`
	ElementStruct *structMetadata `json:"elementStruct,omitempty"`
}

type structMetadata struct {
	Name   string          `json:"name"`
	Fields []fieldMetadata `json:"fields"`
}

func getStructMetadata(typ reflect.Type) structMetadata {
	typ = indirectType(typ)
	sm := structMetadata{Name: typ.Name(), Fields: []fieldMetadata{}}

	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.PkgPath != "" {
			continue
		}

		yamlName := utils.YAMLNameOfField(f)
		if yamlName == "" {
			continue
		}

		_, secret := f.Tag.Lookup("neverLog")
		fm := fieldMetadata{
			YAMLName:   yamlName,
			Type:       indirectKind(f.Type).String(),
			Default:    getDefault(f),
			Required:   getRequired(f),
			Validation: getValidation(f),
			Secret:     secret,
		}

		if indirectKind(f.Type) == reflect.Struct {
			nested := getStructMetadata(f.Type)
			fm.ElementStruct = &nested
			// Nested structs are described by their own fields
			fm.Default = nil
		}

		sm.Fields = append(sm.Fields, fm)
	}
	return sm
}

// Assumes config structs are using the defaults package
func getDefault(f reflect.StructField) interface{} {
	if getRequired(f) && f.Tag.Get("default") == "" {
		return nil
	}
	defTag := f.Tag.Get("default")
	if defTag != "" {
		var out interface{}
		err := json.Unmarshal([]byte(defTag), &out)
		if err != nil {
			if strings.HasPrefix(defTag, "{") || strings.HasPrefix(defTag, "[") {
				log.WithError(err).Errorf("Could not unmarshal default value `%s` for field %s", defTag, f.Name)
			}
			return defTag
		}
		return out
	}
	if f.Type.Kind() == reflect.Ptr {
		return nil
	}
	return reflect.Zero(f.Type).Interface()
}

func validationRules(f reflect.StructField) []string {
	validate := f.Tag.Get("validate")
	if validate == "" {
		return nil
	}
	return strings.Split(validate, ",")
}

// Assumes config structs are using the validate package to do validation
func getRequired(f reflect.StructField) bool {
	for _, v := range validationRules(f) {
		if v == "required" {
			return true
		}
	}
	return false
}

func getValidation(f reflect.StructField) []string {
	var out []string
	for _, v := range validationRules(f) {
		if v != "required" {
			out = append(out, v)
		}
	}
	return out
}

// The kind with any pointer removed
func indirectKind(t reflect.Type) reflect.Kind {
	return indirectType(t).Kind()
}

// The type with any pointers removed
func indirectType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr {
		return t.Elem()
	}
	return t
}
