package openapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Generator builds the OpenAPI 3.0 document for the measure API.
type Generator struct {
	version     string
	baseURL     string
	withStorage bool
}

// NewGenerator creates a new OpenAPI spec generator. When withStorage is false
// the stored-measure routes are documented as returning 501.
func NewGenerator(version, baseURL string, withStorage bool) *Generator {
	return &Generator{version: version, baseURL: baseURL, withStorage: withStorage}
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	idParam := []map[string]interface{}{
		{"name": "id", "in": "path", "required": true, "schema": map[string]string{"type": "string", "format": "uuid"}},
	}
	filterParam := map[string]interface{}{
		"name": "filter", "in": "query", "required": false,
		"description": "Apply each property's matching rules to its records",
		"schema":      map[string]string{"type": "boolean"},
	}

	paths := map[string]interface{}{
		"/v1/extract": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Extract records from an inline document",
				"operationId": "extract",
				"tags":        []string{"Extraction"},
				"parameters":  []map[string]interface{}{filterParam},
				"requestBody": requestBody("#/components/schemas/ExtractRequest"),
				"responses": g.responses(map[string]interface{}{
					"200": jsonResponse("Extracted records by property", "#/components/schemas/Extraction"),
					"400": errorResponse("Malformed request or definition"),
					"422": errorResponse("Document could not be processed"),
				}, false),
			},
		},
		"/v1/measures": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "List stored measures",
				"operationId": "listMeasures",
				"tags":        []string{"Measure"},
				"parameters": []map[string]interface{}{
					{"name": "limit", "in": "query", "schema": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 100}},
					{"name": "offset", "in": "query", "schema": map[string]interface{}{"type": "integer", "minimum": 0}},
				},
				"responses": g.responses(map[string]interface{}{
					"200": jsonResponse("Page of measures", "#/components/schemas/MeasureList"),
				}, true),
			},
			"post": map[string]interface{}{
				"summary":     "Store a measure definition",
				"operationId": "createMeasure",
				"tags":        []string{"Measure"},
				"requestBody": requestBody("#/components/schemas/CreateMeasureRequest"),
				"responses": g.responses(map[string]interface{}{
					"201": jsonResponse("Stored measure", "#/components/schemas/Measure"),
					"400": errorResponse("Malformed request or definition"),
					"409": errorResponse("A measure with this name exists"),
				}, true),
			},
		},
		"/v1/measures/{id}": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Read a stored measure",
				"operationId": "getMeasure",
				"tags":        []string{"Measure"},
				"parameters":  idParam,
				"responses": g.responses(map[string]interface{}{
					"200": jsonResponse("Stored measure", "#/components/schemas/Measure"),
					"404": errorResponse("Not found"),
				}, true),
			},
			"delete": map[string]interface{}{
				"summary":     "Delete a stored measure",
				"operationId": "deleteMeasure",
				"tags":        []string{"Measure"},
				"parameters":  idParam,
				"responses": g.responses(map[string]interface{}{
					"204": map[string]interface{}{"description": "Deleted"},
					"404": errorResponse("Not found"),
				}, true),
			},
		},
		"/v1/measures/{id}/extract": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Extract records with a stored measure",
				"operationId": "extractStored",
				"tags":        []string{"Extraction"},
				"parameters":  append([]map[string]interface{}{filterParam}, idParam...),
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"application/xml": map[string]interface{}{"schema": map[string]string{"type": "string"}},
					},
				},
				"responses": g.responses(map[string]interface{}{
					"200": jsonResponse("Extracted records by property", "#/components/schemas/Extraction"),
					"404": errorResponse("Not found"),
					"422": errorResponse("Document could not be processed"),
				}, true),
			},
		},
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Measure Importer API",
			"version":     g.version,
			"description": "Extracts measure-relevant clinical entries from HL7 CDA documents",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths":    paths,
		"security": []map[string][]string{{"bearerAuth": {}}},
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]string{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
			"schemas": buildComponentSchemas(),
		},
	}
}

// responses adds the responses every protected route shares.
func (g *Generator) responses(rs map[string]interface{}, stored bool) map[string]interface{} {
	rs["401"] = errorResponse("Missing or invalid credentials")
	rs["403"] = errorResponse("Insufficient role")
	rs["429"] = errorResponse("Rate limit exceeded")
	if stored && !g.withStorage {
		rs["501"] = errorResponse("Measure storage is not configured")
	}
	return rs
}

func requestBody(schemaRef string) map[string]interface{} {
	ref := map[string]interface{}{"schema": map[string]string{"$ref": schemaRef}}
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": ref,
			"application/yaml": ref,
		},
	}
}

func jsonResponse(description, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{
					"$ref": schemaRef,
				},
			},
		},
	}
}

func errorResponse(description string) map[string]interface{} {
	return jsonResponse(description, "#/components/schemas/Error")
}

func buildComponentSchemas() map[string]interface{} {
	definition := map[string]interface{}{
		"type":        "object",
		"description": "Property name to description; key order is preserved",
		"additionalProperties": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"standard_category":   map[string]string{"type": "string"},
				"standard_categories": map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
			},
			"additionalProperties": true,
		},
	}

	return map[string]interface{}{
		"Definition": definition,
		"ExtractRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"definition", "document"},
			"properties": map[string]interface{}{
				"definition": map[string]string{"$ref": "#/components/schemas/Definition"},
				"document":   map[string]string{"type": "string", "description": "CDA document XML"},
			},
		},
		"CreateMeasureRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"name", "definition"},
			"properties": map[string]interface{}{
				"name":        map[string]string{"type": "string"},
				"description": map[string]string{"type": "string"},
				"definition":  map[string]string{"$ref": "#/components/schemas/Definition"},
			},
		},
		"Measure": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":          map[string]string{"type": "string", "format": "uuid"},
				"name":        map[string]string{"type": "string"},
				"description": map[string]string{"type": "string"},
				"definition":  map[string]string{"$ref": "#/components/schemas/Definition"},
				"version_id":  map[string]string{"type": "integer"},
				"created_at":  map[string]string{"type": "string", "format": "date-time"},
				"updated_at":  map[string]string{"type": "string", "format": "date-time"},
			},
		},
		"MeasureList": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"data":     map[string]interface{}{"type": "array", "items": map[string]string{"$ref": "#/components/schemas/Measure"}},
				"total":    map[string]string{"type": "integer"},
				"limit":    map[string]string{"type": "integer"},
				"offset":   map[string]string{"type": "integer"},
				"has_more": map[string]string{"type": "boolean"},
			},
		},
		"Quantity": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"scalar": map[string]string{"type": "string"},
				"units":  map[string]string{"type": "string"},
			},
		},
		"Record": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id": map[string]string{"type": "string"},
				"codes": map[string]interface{}{
					"type":                 "object",
					"description":          "Code system name to codes",
					"additionalProperties": map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
				},
				"time":        map[string]string{"type": "string", "format": "date-time"},
				"start_time":  map[string]string{"type": "string", "format": "date-time"},
				"end_time":    map[string]string{"type": "string", "format": "date-time"},
				"value":       map[string]string{"$ref": "#/components/schemas/Quantity"},
				"status":      map[string]string{"type": "string"},
				"description": map[string]string{"type": "string"},
			},
		},
		"Extraction": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"profile": map[string]interface{}{"type": "string", "enum": []string{"c32", "ccda"}},
				"header":  map[string]string{"type": "object"},
				"results": map[string]interface{}{
					"type": "object",
					"additionalProperties": map[string]interface{}{
						"type": "array", "items": map[string]string{"$ref": "#/components/schemas/Record"},
					},
				},
			},
		},
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"error":      map[string]string{"type": "string"},
				"request_id": map[string]string{"type": "string"},
			},
		},
	}
}

// ── Swagger UI ──────────────────────────────────────────────────────────

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Measure Importer API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	apiGroup.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
