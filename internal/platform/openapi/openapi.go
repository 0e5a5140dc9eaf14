package openapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// RouteLister is satisfied by *echo.Echo.
type RouteLister interface {
	Routes() []*echo.Route
}

// Operation documents one method and path. Routes without a registered
// Operation are still listed with a generated summary.
type Operation struct {
	Summary     string
	Tag         string
	Query       []Param
	RequestBody string // component schema name
	Response    string // component schema name, empty for non-JSON bodies
	Produces    string
}

// Param is a documented query parameter.
type Param struct {
	Name        string
	Type        string
	Description string
}

// Generator builds an OpenAPI 3.0 document from the live route table.
type Generator struct {
	routes  RouteLister
	version string
	baseURL string
	ops     map[string]Operation
}

func NewGenerator(routes RouteLister, version, baseURL string) *Generator {
	return &Generator{routes: routes, version: version, baseURL: baseURL, ops: defaultOperations()}
}

// Describe overrides the documentation for method and path.
func (g *Generator) Describe(method, path string, op Operation) {
	g.ops[method+" "+path] = op
}

// GenerateSpec produces the OpenAPI document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	routes := g.routes.Routes()
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})

	paths := make(map[string]interface{})
	tagSet := make(map[string]struct{})
	for _, r := range routes {
		if !documented(r) {
			continue
		}
		op, ok := g.ops[r.Method+" "+r.Path]
		if !ok {
			op = Operation{Summary: r.Method + " " + r.Path}
		}
		if op.Tag == "" {
			op.Tag = tagFor(r.Path)
		}
		tagSet[op.Tag] = struct{}{}

		oasPath, pathParams := convertPath(r.Path)
		item, _ := paths[oasPath].(map[string]interface{})
		if item == nil {
			item = make(map[string]interface{})
			paths[oasPath] = item
		}
		item[strings.ToLower(r.Method)] = g.buildOperation(r, op, pathParams)
	}

	tags := make([]map[string]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, map[string]string{"name": t})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i]["name"] < tags[j]["name"] })

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Disease Surveillance API",
			"version":     g.version,
			"description": "Disease observation records, outbreak risk and reporting",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"tags":  tags,
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": componentSchemas(),
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]string{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
		"security": []map[string][]string{{"bearerAuth": {}}},
	}
}

// documented skips echo's internal routes and wildcard handlers.
func documented(r *echo.Route) bool {
	if r.Method == echo.RouteNotFound || strings.Contains(r.Path, "*") {
		return false
	}
	return r.Method != http.MethodOptions && r.Method != http.MethodHead
}

func (g *Generator) buildOperation(r *echo.Route, op Operation, pathParams []string) map[string]interface{} {
	params := make([]map[string]interface{}, 0, len(pathParams)+len(op.Query))
	for _, p := range pathParams {
		params = append(params, map[string]interface{}{
			"name": p, "in": "path", "required": true, "schema": map[string]string{"type": "string"},
		})
	}
	for _, q := range op.Query {
		typ := q.Type
		if typ == "" {
			typ = "string"
		}
		params = append(params, map[string]interface{}{
			"name": q.Name, "in": "query", "description": q.Description, "schema": map[string]string{"type": typ},
		})
	}

	out := map[string]interface{}{
		"summary":     op.Summary,
		"operationId": operationID(r.Method, r.Path),
		"tags":        []string{op.Tag},
		"responses":   g.buildResponses(r.Method, op),
	}
	if len(params) > 0 {
		out["parameters"] = params
	}
	if op.RequestBody != "" {
		out["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{"schema": ref(op.RequestBody)},
			},
		}
	}
	return out
}

func (g *Generator) buildResponses(method string, op Operation) map[string]interface{} {
	code := "200"
	switch method {
	case http.MethodPost:
		if op.RequestBody != "" {
			code = "201"
		}
	case http.MethodDelete:
		code = "204"
	}

	ok := map[string]interface{}{"description": "Success"}
	switch {
	case op.Produces != "":
		ok["content"] = map[string]interface{}{
			op.Produces: map[string]interface{}{"schema": map[string]string{"type": "string", "format": "binary"}},
		}
	case op.Response != "":
		ok["content"] = map[string]interface{}{
			"application/json": map[string]interface{}{"schema": ref(op.Response)},
		}
	}
	errResp := map[string]interface{}{
		"description": "Error",
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": ref("Error")},
		},
	}
	return map[string]interface{}{code: ok, "400": errResp, "401": errResp, "404": errResp}
}

func ref(schema string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + schema}
}

// convertPath turns echo's ":id" segments into "{id}".
func convertPath(p string) (string, []string) {
	segs := strings.Split(p, "/")
	var params []string
	for i, s := range segs {
		if strings.HasPrefix(s, ":") {
			name := s[1:]
			params = append(params, name)
			segs[i] = "{" + name + "}"
		}
	}
	return strings.Join(segs, "/"), params
}

// tagFor is the first path segment after the API prefix.
func tagFor(p string) string {
	p = strings.TrimPrefix(p, "/api/v1")
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "default"
	}
	return p
}

func operationID(method, p string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, s := range strings.FieldsFunc(strings.TrimPrefix(p, "/api/v1"), func(r rune) bool {
		return r == '/' || r == '-' || r == '.' || r == '_'
	}) {
		s = strings.TrimPrefix(s, ":")
		if s == "" {
			continue
		}
		b.WriteString(strings.ToUpper(s[:1]) + s[1:])
	}
	return b.String()
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Disease Surveillance API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: "/api/openapi.json", dom_id: '#swagger-ui', deepLinking: true })
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
