package openapi

import "net/http"

var dateRange = []Param{
	{Name: "start_date", Description: "Inclusive start day, YYYY-MM-DD"},
	{Name: "end_date", Description: "Inclusive end day, YYYY-MM-DD"},
}

func defaultOperations() map[string]Operation {
	filters := append([]Param{
		{Name: "hospital"}, {Name: "disease"}, {Name: "occasion"},
		{Name: "limit", Type: "integer"}, {Name: "offset", Type: "integer"},
	}, dateRange...)

	ops := map[string]Operation{
		http.MethodGet + " /api/v1/hospitals":               {Summary: "List known hospitals", Response: "HospitalList"},
		http.MethodGet + " /api/v1/observations":            {Summary: "Search disease observations", Query: filters, Response: "Page"},
		http.MethodGet + " /api/v1/observations/:id":        {Summary: "Read one observation", Response: "Observation"},
		http.MethodPost + " /api/v1/observations":           {Summary: "Record a disease observation", RequestBody: "ObservationInput", Response: "Observation"},
		http.MethodGet + " /api/v1/dashboard/summary":       {Summary: "Thirty day dashboard summary", Response: "Summary"},
		http.MethodGet + " /api/v1/surveillance":            {Summary: "Three day per-hospital surveillance", Query: []Param{{Name: "hospital"}}},
		http.MethodGet + " /api/v1/surveillance/map":        {Summary: "Hospital risk map"},
		http.MethodGet + " /api/v1/outbreaks":               {Summary: "Outbreak warnings and patterns", Query: dateRange, Response: "OutbreakReport"},
		http.MethodGet + " /api/v1/predictions":             {Summary: "Next-period case predictions", Response: "PredictionResult"},
		http.MethodGet + " /api/v1/recommendations":         {Summary: "Prevention recommendations"},
		http.MethodGet + " /api/v1/charts/admissions.png":   {Summary: "Admissions chart", Produces: "image/png"},
		http.MethodGet + " /api/v1/charts/top-diseases.png": {Summary: "Top diseases chart", Produces: "image/png"},
		http.MethodGet + " /api/v1/reports":                 {Summary: "List exportable reports"},
		http.MethodGet + " /api/v1/reports/:id": {
			Summary:  "Export a report",
			Query:    []Param{{Name: "format", Description: "excel or pdf"}},
			Produces: "application/octet-stream",
		},
		http.MethodPost + " /api/v1/admin/reseed": {Summary: "Replace all observations with generated data", Tag: "admin"},
	}
	return ops
}

func str() map[string]interface{} { return map[string]interface{}{"type": "string"} }
func intg() map[string]interface{} { return map[string]interface{}{"type": "integer"} }

func object(required []string, props map[string]interface{}) map[string]interface{} {
	s := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func arrayOf(schema string) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": ref(schema)}
}

func componentSchemas() map[string]interface{} {
	risk := map[string]interface{}{"type": "string", "enum": []string{"Low", "Medium", "High"}}
	return map[string]interface{}{
		"Observation": object([]string{"id", "patient_age", "disease_name", "occasion", "date", "hospital_name"}, map[string]interface{}{
			"id":            map[string]interface{}{"type": "string", "format": "uuid"},
			"patient_age":   intg(),
			"disease_name":  str(),
			"occasion":      map[string]interface{}{"type": "string", "enum": []string{"Newly detected", "Review"}},
			"date":          map[string]interface{}{"type": "string", "format": "date"},
			"hospital_name": str(),
			"created_at":    map[string]interface{}{"type": "string", "format": "date-time"},
		}),
		"ObservationInput": object([]string{"patient_age", "disease_name", "occasion", "date", "hospital_name"}, map[string]interface{}{
			"patient_age":   str(),
			"disease_name":  str(),
			"occasion":      str(),
			"date":          map[string]interface{}{"type": "string", "format": "date"},
			"hospital_name": str(),
		}),
		"HospitalList": map[string]interface{}{"type": "array", "items": object(nil, map[string]interface{}{
			"name": str(), "lat": map[string]interface{}{"type": "number"}, "lon": map[string]interface{}{"type": "number"},
		})},
		"Total": object([]string{"label", "count"}, map[string]interface{}{"label": str(), "count": intg()}),
		"HospitalRisk": object(nil, map[string]interface{}{
			"hospital": str(), "cases": intg(), "risk_level": risk,
		}),
		"Summary": object(nil, map[string]interface{}{
			"start_date":         str(),
			"end_date":           str(),
			"top_diseases":       arrayOf("Total"),
			"admission_trends":   arrayOf("Total"),
			"occasion_breakdown": arrayOf("Total"),
			"new_cases":          intg(),
			"review_cases":       intg(),
			"hospital_risk":      arrayOf("HospitalRisk"),
		}),
		"Warning": object(nil, map[string]interface{}{
			"disease": str(), "date": str(), "previous_count": intg(), "current_count": intg(), "message": str(),
		}),
		"OutbreakReport": object(nil, map[string]interface{}{
			"start_date":             str(),
			"end_date":               str(),
			"most_frequent_diseases": arrayOf("Total"),
			"warnings":               arrayOf("Warning"),
		}),
		"Prediction": object(nil, map[string]interface{}{
			"disease": str(), "predicted_count": intg(), "risk_level": risk,
		}),
		"PredictionResult": object(nil, map[string]interface{}{
			"predictions":       arrayOf("Prediction"),
			"insufficient_data": map[string]interface{}{"type": "boolean"},
			"sample_size":       intg(),
			"train_size":        intg(),
			"eval_size":         intg(),
			"disclaimer":        str(),
		}),
		"Page": object(nil, map[string]interface{}{
			"data":     map[string]interface{}{"type": "array", "items": ref("Observation")},
			"total":    intg(),
			"limit":    intg(),
			"offset":   intg(),
			"has_more": map[string]interface{}{"type": "boolean"},
		}),
		"Error": object([]string{"message"}, map[string]interface{}{"message": str()}),
	}
}
