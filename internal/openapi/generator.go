// Package openapi describes the gateway's HTTP surface as an OpenAPI 3.1
// document.
package openapi

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/jmxgate/jmxgate/internal/jolokia"
)

// GatewayPath is the templated path of the Jolokia gateway.
const GatewayPath = "/management/namespaces/{namespace}/pods/{target}/{path}"

// Generate builds the OpenAPI document of the server.
func Generate(baseURL, version string) *openapi3.T {
	if version == "" {
		version = "dev"
	}
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "jmxgate",
			Description: "Role-based access gateway in front of the Jolokia agents of Kubernetes pods.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	// The token is reviewed by the cluster, not by the gateway.
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "http",
			Scheme:      "bearer",
			Description: "Kubernetes or OpenShift bearer token of the caller.",
		},
	}

	doc.Components.Schemas["ErrorResponse"] = errorSchema()
	doc.Components.Schemas["JolokiaRequest"] = requestSchema()
	doc.Components.Schemas["JolokiaResponse"] = responseSchema()

	doc.Paths = openapi3.NewPaths()
	addGatewayPath(doc)
	addProbePaths(doc)
	return doc
}

func addGatewayPath(doc *openapi3.T) {
	params := openapi3.Parameters{
		pathParameter("namespace", "Namespace of the pod."),
		pathParameter("target", "Agent address as {proto}:{pod}:{port}, proto being http or https.", `^https?:[^/:]+:\d+$`),
		pathParameter("path", "Jolokia path inside the pod, starting with the agent's context (for example jolokia/read/java.lang:type=Memory)."),
	}
	bearer := &openapi3.SecurityRequirements{{"bearerAuth": {}}}
	requestRef := openapi3.NewSchemaRef("#/components/schemas/JolokiaRequest", nil)
	responseRef := openapi3.NewSchemaRef("#/components/schemas/JolokiaResponse", nil)

	bulkOrSingle := func(ref *openapi3.SchemaRef) *openapi3.SchemaRef {
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				OneOf: openapi3.SchemaRefs{
					ref,
					{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: ref}},
				},
			},
		}
	}

	get := &openapi3.Operation{
		Tags:        []string{"gateway"},
		Summary:     "Jolokia GET request",
		Description: "The Jolokia request is encoded in the path. The caller's role on the pod decides which operations pass.",
		OperationID: "jolokiaGet",
		Parameters:  params,
		Security:    bearer,
		Responses:   gatewayResponses(responseRef),
	}
	post := &openapi3.Operation{
		Tags:        []string{"gateway"},
		Summary:     "Jolokia POST request",
		Description: fmt.Sprintf("Single or bulk Jolokia request. Denied elements of a bulk answer with status 403 in place; searches for %s and calls on %s are answered by the gateway.", jolokia.RBACSearchPattern, jolokia.RBACMBean),
		OperationID: "jolokiaPost",
		Parameters:  params,
		Security:    bearer,
		RequestBody: &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(bulkOrSingle(requestRef)),
			},
		},
		Responses: gatewayResponses(bulkOrSingle(responseRef)),
	}
	doc.Paths.Set(GatewayPath, &openapi3.PathItem{
		Get:  get,
		Post: post,
	})
}

func addProbePaths(doc *openapi3.T) {
	status := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"status": stringSchema(),
			},
		},
	}
	ready := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"status":    stringSchema(),
				"rbac":      {Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"acl_rules": {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}},
				"version":   stringSchema(),
			},
		},
	}
	doc.Paths.Set("/healthz", &openapi3.PathItem{Get: probeOperation("healthz", "Liveness probe", status)})
	doc.Paths.Set("/readyz", &openapi3.PathItem{Get: probeOperation("readyz", "Readiness probe with the RBAC mode", ready)})
}

func probeOperation(id, summary string, schema *openapi3.SchemaRef) *openapi3.Operation {
	desc := "OK"
	responses := openapi3.NewResponses()
	responses.Set("200", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})
	return &openapi3.Operation{
		Tags:        []string{"probes"},
		Summary:     summary,
		OperationID: id,
		Responses:   responses,
	}
}

// gatewayResponses lists the statuses a gateway call can answer with.
func gatewayResponses(schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	okDesc := "Agent or gateway response"
	responses.Set("200", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &okDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for _, e := range []struct {
		code string
		desc string
	}{
		{"401", "Missing bearer token"},
		{"403", "Pod access denied, or a single request denied by the ACL"},
		{"404", "URL not recognized"},
		{"413", "Request body too large"},
		{"429", "Rate limit exceeded"},
		{"502", "Authorization, pod lookup, parse or agent failure"},
	} {
		desc := e.desc
		responses.Set(e.code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

func pathParameter(name, description string, pattern ...string) *openapi3.ParameterRef {
	s := &openapi3.Schema{Type: &openapi3.Types{"string"}}
	if len(pattern) > 0 {
		s.Pattern = pattern[0]
	}
	return &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:        name,
			In:          openapi3.ParameterInPath,
			Required:    true,
			Description: description,
			Schema:      &openapi3.SchemaRef{Value: s},
		},
	}
}

// ─── Schema Builders ────────────────────────────────────────────────────────

func stringSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
}

func errorSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"status":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
				"message": stringSchema(),
				"reason":  stringSchema(),
			},
			Required: []string{"status", "message"},
		},
	}
}

func requestSchema() *openapi3.SchemaRef {
	types := []any{}
	for _, t := range []jolokia.Type{
		jolokia.TypeRead, jolokia.TypeWrite, jolokia.TypeExec, jolokia.TypeSearch,
		jolokia.TypeList, jolokia.TypeVersion, jolokia.TypeNotification,
	} {
		types = append(types, string(t))
	}
	stringOrArray := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			OneOf: openapi3.SchemaRefs{
				stringSchema(),
				{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: stringSchema()}},
			},
		},
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"type":      {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: types}},
				"mbean":     stringSchema(),
				"attribute": stringOrArray,
				"value":     {Value: &openapi3.Schema{}},
				"operation": stringSchema(),
				"arguments": {Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: &openapi3.SchemaRef{Value: &openapi3.Schema{}}}},
				"path":      stringSchema(),
				"config":    {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
			},
			Required: []string{"type"},
		},
	}
}

func responseSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"request":    openapi3.NewSchemaRef("#/components/schemas/JolokiaRequest", nil),
				"value":      {Value: &openapi3.Schema{}},
				"status":     {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
				"timestamp":  {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
				"error":      stringSchema(),
				"error_type": stringSchema(),
				"reason":     stringSchema(),
			},
			Required: []string{"status"},
		},
	}
}
