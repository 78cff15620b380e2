package config

import (
	// blank import for embeds
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"sigs.k8s.io/yaml"
)

const (
	jsonschemaOneOf = "number_one_of"
	jsonschemaAnyOf = "number_any_of"
	errorString     = `There is a problem in your project config.
%s.`
)

//go:embed data/project_config_schema.json
var projectConfigSchema []byte

func getSchema() gojsonschema.JSONLoader {
	return gojsonschema.NewStringLoader(string(projectConfigSchema))
}

// ValidateSchema checks config (already decoded into a Go value or raw
// YAML text) against the embedded schema shared by TreeConfig and
// ProjectConfig documents.
func ValidateSchema(config any) error {
	dataLoader := gojsonschema.NewGoLoader(config)
	return validateLoader(dataLoader)
}

// ValidateYAML checks a raw YAML document's shape against the embedded
// schema, bridging via sigs.k8s.io/yaml the same way the schema's
// go-struct sibling does.
func ValidateYAML(yamlDoc []byte) error {
	jsonDoc, err := yaml.YAMLToJSON(yamlDoc)
	if err != nil {
		return &SchemaError{Message: err.Error()}
	}
	dataLoader := gojsonschema.NewStringLoader(string(jsonDoc))
	return validateLoader(dataLoader)
}

func validateLoader(dataLoader gojsonschema.JSONLoader) error {
	result, err := gojsonschema.Validate(getSchema(), dataLoader)
	if err != nil {
		return err
	}
	if !result.Valid() {
		return toSchemaError(result)
	}
	return nil
}

/*
The error-formatting helpers below are adapted from docker-ce's compose
schema validator:
https://github.com/docker/docker-ce/blob/f76280404059080d79fcda620caf8cef5a4a22f7/components/cli/cli/compose/schema/schema.go
(Apache v2, https://github.com/docker/docker-ce/blob/master/LICENSE)
*/

func toSchemaError(result *gojsonschema.Result) error {
	verr := getMostSpecificError(result.Errors())
	return &SchemaError{Field: verr.parent.Field(), Message: verr.Error()}
}

func getDescription(err validationError) string {
	switch err.parent.Type() {
	case "invalid_type":
		if expectedType, ok := err.parent.Details()["expected"].(string); ok {
			return fmt.Sprintf("must be a %s", humanReadableType(expectedType))
		}
	case jsonschemaOneOf, jsonschemaAnyOf:
		if err.child == nil {
			return err.parent.Description()
		}
		return err.child.Description()
	}
	return err.parent.Description()
}

func humanReadableType(definition string) string {
	if definition[0:1] == "[" {
		allTypes := strings.Split(definition[1:len(definition)-1], ",")
		for i, t := range allTypes {
			allTypes[i] = humanReadableType(t)
		}
		return fmt.Sprintf(
			"%s or %s",
			strings.Join(allTypes[0:len(allTypes)-1], ", "),
			allTypes[len(allTypes)-1],
		)
	}
	if definition == "object" {
		return "mapping"
	}
	if definition == "array" {
		return "list"
	}
	return definition
}

type validationError struct {
	parent gojsonschema.ResultError
	child  gojsonschema.ResultError
}

func (err validationError) Error() string {
	return fmt.Sprintf(errorString, getDescription(err))
}

func getMostSpecificError(errs []gojsonschema.ResultError) validationError {
	mostSpecificError := 0
	for i, err := range errs {
		if specificity(err) > specificity(errs[mostSpecificError]) {
			mostSpecificError = i
			continue
		}

		if specificity(err) == specificity(errs[mostSpecificError]) {
			// Invalid type errors win in a tie-breaker for most specific field name
			if err.Type() == "invalid_type" && errs[mostSpecificError].Type() != "invalid_type" {
				mostSpecificError = i
			}
		}
	}

	if mostSpecificError+1 == len(errs) {
		return validationError{parent: errs[mostSpecificError]}
	}

	switch errs[mostSpecificError].Type() {
	case jsonschemaOneOf, jsonschemaAnyOf:
		return validationError{
			parent: errs[mostSpecificError],
			child:  errs[mostSpecificError+1],
		}
	default:
		return validationError{parent: errs[mostSpecificError]}
	}
}

func specificity(err gojsonschema.ResultError) int {
	return len(strings.Split(err.Field(), "."))
}
