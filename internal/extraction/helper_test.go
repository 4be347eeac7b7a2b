package extraction_test

import (
	"encoding/json"
	"net/http"
)

func decodeBody(r *http.Request, into any) error {
	return json.NewDecoder(r.Body).Decode(into)
}
