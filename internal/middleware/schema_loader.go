package middleware

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	contextutils "feedbackapp/internal/utils"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v2"
)

// SchemaLoader compiles the JSON schemas declared in the OpenAPI document
// and answers endpoint/schema lookups against the parsed document. The
// document is parsed once at load time; lookups never touch the filesystem
// again.
type SchemaLoader struct {
	schemas     map[string]*gojsonschema.Schema
	swaggerData map[string]interface{}
}

// NewSchemaLoader creates an empty schema loader
func NewSchemaLoader() *SchemaLoader {
	return &SchemaLoader{
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// LoadSchemasFromSwagger reads the OpenAPI file at the given path and loads
// all component schemas from it
func (sl *SchemaLoader) LoadSchemasFromSwagger(swaggerPath string) error {
	data, err := os.ReadFile(swaggerPath)
	if err != nil {
		return contextutils.WrapError(err, "failed to read swagger file")
	}
	return sl.LoadSchemasFromSwaggerFromData(data)
}

// LoadSchemasFromSwaggerFromData parses OpenAPI YAML bytes, caches the parsed
// document for endpoint lookups, and compiles every schema under
// components/schemas
func (sl *SchemaLoader) LoadSchemasFromSwaggerFromData(data []byte) error {
	var swagger map[string]interface{}
	if err := yaml.Unmarshal(data, &swagger); err != nil {
		return contextutils.WrapError(err, "failed to parse swagger file as YAML")
	}
	sl.swaggerData = swagger

	components, ok := asStringMap(swagger["components"])
	if !ok {
		return contextutils.ErrorWithContextf("no components section found in swagger")
	}
	schemas, ok := asStringMap(components["schemas"])
	if !ok {
		return contextutils.ErrorWithContextf("no schemas section found in swagger")
	}

	// yaml.v2 produces map[interface{}]interface{}; JSON marshaling needs
	// string keys throughout
	jsonCompatible := make(map[string]interface{}, len(schemas))
	for name, schemaData := range schemas {
		converted, err := convertToJSONCompatible(schemaData)
		if err != nil {
			fmt.Printf("Warning: failed to convert schema %s: %v\n", name, err)
			continue
		}
		jsonCompatible[name] = converted
	}

	for name := range jsonCompatible {
		// Wrap each schema in the full components context so $ref between
		// schemas resolves
		doc := map[string]interface{}{
			"$schema": "http://json-schema.org/draft-07/schema#",
			"components": map[string]interface{}{
				"schemas": jsonCompatible,
			},
			"$ref": "#/components/schemas/" + name,
		}

		docBytes, err := json.Marshal(doc)
		if err != nil {
			fmt.Printf("Warning: failed to marshal schema %s: %v\n", name, err)
			continue
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(docBytes))
		if err != nil {
			fmt.Printf("Warning: failed to compile schema %s: %v\n", name, err)
			continue
		}
		sl.schemas[name] = schema
	}

	return nil
}

// asStringMap normalizes a parsed YAML mapping to string keys. yaml.v2
// returns map[interface{}]interface{} for nested maps and may parse keys
// like 200 as integers.
func asStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(m))
		for k, val := range m {
			result[fmt.Sprintf("%v", k)] = val
		}
		return result, true
	default:
		return nil, false
	}
}

// convertToJSONCompatible rewrites a parsed YAML schema into a JSON-compatible
// structure, translating OpenAPI `nullable: true` into JSON Schema unions.
func convertToJSONCompatible(data interface{}) (interface{}, error) {
	switch v := data.(type) {
	case map[interface{}]interface{}, map[string]interface{}:
		m, _ := asStringMap(v)
		result := make(map[string]interface{}, len(m))
		hasNullable := false

		for key, val := range m {
			if key == "nullable" {
				if nullable, ok := val.(bool); ok && nullable {
					hasNullable = true
					continue
				}
			}
			converted, err := convertToJSONCompatible(val)
			if err != nil {
				return nil, err
			}
			result[key] = converted
		}

		if hasNullable {
			if ref, hasRef := result["$ref"].(string); hasRef {
				result["oneOf"] = []interface{}{
					map[string]interface{}{"$ref": ref},
					map[string]interface{}{"enum": []interface{}{nil}},
				}
				delete(result, "$ref")
			} else if typeVal, hasType := result["type"].(string); hasType {
				result["type"] = []interface{}{typeVal, "null"}
			}
		}

		return result, nil
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			converted, err := convertToJSONCompatible(val)
			if err != nil {
				return nil, err
			}
			result[i] = converted
		}
		return result, nil
	default:
		return data, nil
	}
}

// ValidateData validates data against a loaded schema
func (sl *SchemaLoader) ValidateData(data interface{}, schemaName string) error {
	schema, exists := sl.schemas[schemaName]
	if !exists {
		return contextutils.ErrorWithContextf("schema %s not found", schemaName)
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return contextutils.WrapError(err, "failed to marshal data")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return contextutils.WrapError(err, "validation error")
	}

	if !result.Valid() {
		var validationErrors []string
		for _, validationErr := range result.Errors() {
			validationErrors = append(validationErrors, fmt.Sprintf("%s: %s", validationErr.Field(), validationErr.Description()))
		}
		return contextutils.ErrorWithContextf("schema validation failed: %s", strings.Join(validationErrors, "; "))
	}

	return nil
}

// AutoLoadSchemas builds a schema loader from the file named by the
// SWAGGER_FILE_PATH environment variable. A missing or unreadable file
// yields an empty loader; validation middleware then passes everything
// through with a warning per request.
func AutoLoadSchemas() *SchemaLoader {
	loader := NewSchemaLoader()

	swaggerPath := os.Getenv("SWAGGER_FILE_PATH")
	if swaggerPath == "" {
		fmt.Printf("⚠️  SWAGGER_FILE_PATH not set, request/response validation disabled\n")
		return loader
	}

	if err := loader.LoadSchemasFromSwagger(swaggerPath); err != nil {
		fmt.Printf("Warning: failed to load schemas from %s: %v\n", swaggerPath, err)
		return loader
	}

	fmt.Printf("✅ Loaded %d schemas from %s\n", len(loader.schemas), swaggerPath)
	return loader
}

// ensureLoaded lazily loads the swagger document when the loader was
// constructed without data
func (sl *SchemaLoader) ensureLoaded() bool {
	if sl.swaggerData != nil {
		return true
	}
	swaggerPath := os.Getenv("SWAGGER_FILE_PATH")
	if swaggerPath == "" {
		return false
	}
	return sl.LoadSchemasFromSwagger(swaggerPath) == nil
}

// paths returns the paths section of the cached document
func (sl *SchemaLoader) paths() (map[string]interface{}, bool) {
	if !sl.ensureLoaded() {
		return nil, false
	}
	return asStringMap(sl.swaggerData["paths"])
}

// lookupOperation finds the operation object for a request path and method,
// matching documented path templates like /v1/admin/users/{id}
func (sl *SchemaLoader) lookupOperation(path, method string) (map[string]interface{}, bool) {
	paths, ok := sl.paths()
	if !ok {
		return nil, false
	}

	method = strings.ToLower(method)

	if pathInfo, exists := paths[path]; exists {
		if pathMap, ok := asStringMap(pathInfo); ok {
			if op, ok := asStringMap(pathMap[method]); ok {
				return op, true
			}
		}
	}

	for swaggerPath, pathInfo := range paths {
		if !sl.pathMatchesPattern(path, swaggerPath) {
			continue
		}
		if pathMap, ok := asStringMap(pathInfo); ok {
			if op, ok := asStringMap(pathMap[method]); ok {
				return op, true
			}
		}
	}

	return nil, false
}

// IsEndpointDocumented checks whether the OpenAPI document declares the
// endpoint
func (sl *SchemaLoader) IsEndpointDocumented(path, method string) bool {
	_, ok := sl.lookupOperation(path, method)
	return ok
}

// pathMatchesPattern checks if a request path matches a documented path
// template segment by segment
func (sl *SchemaLoader) pathMatchesPattern(requestPath, swaggerPath string) bool {
	requestSegments := strings.Split(requestPath, "/")
	swaggerSegments := strings.Split(swaggerPath, "/")

	if len(requestSegments) != len(swaggerSegments) {
		return false
	}

	for i, swaggerSegment := range swaggerSegments {
		if strings.HasPrefix(swaggerSegment, "{") && strings.HasSuffix(swaggerSegment, "}") {
			continue
		}
		if swaggerSegment != requestSegments[i] {
			return false
		}
	}

	return true
}

// schemaNameFromRef extracts the component name from a
// "#/components/schemas/Name" reference
func schemaNameFromRef(schema interface{}) string {
	schemaMap, ok := asStringMap(schema)
	if !ok {
		return ""
	}
	ref, ok := schemaMap["$ref"].(string)
	if !ok {
		return ""
	}
	if !strings.HasPrefix(ref, "#/components/schemas/") {
		return ""
	}
	return strings.TrimPrefix(ref, "#/components/schemas/")
}

// jsonSchemaRef walks content -> application/json -> schema on a request
// body or response object
func jsonSchemaRef(owner map[string]interface{}) string {
	content, ok := asStringMap(owner["content"])
	if !ok {
		return ""
	}
	jsonContent, ok := asStringMap(content["application/json"])
	if !ok {
		return ""
	}
	return schemaNameFromRef(jsonContent["schema"])
}

// DetermineRequestSchemaFromPath returns the request body schema name
// declared for the endpoint, or "" when the endpoint takes no documented
// JSON body
func (sl *SchemaLoader) DetermineRequestSchemaFromPath(path, method string) string {
	op, ok := sl.lookupOperation(path, method)
	if !ok {
		return ""
	}
	requestBody, ok := asStringMap(op["requestBody"])
	if !ok {
		return ""
	}
	return jsonSchemaRef(requestBody)
}

// DetermineSchemaFromPath returns the 200-response schema name declared for
// the endpoint, or "" when none is documented
func (sl *SchemaLoader) DetermineSchemaFromPath(path, method string) string {
	op, ok := sl.lookupOperation(path, method)
	if !ok {
		return ""
	}
	responses, ok := asStringMap(op["responses"])
	if !ok {
		return ""
	}
	response200, ok := asStringMap(responses["200"])
	if !ok {
		return ""
	}
	return jsonSchemaRef(response200)
}
