package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

const Success int = 1

type successRsp struct {
	Result   int `json:"result"`
	Response any `json:"response"`
}

// SendJsonRsp encodes rsp as JSON and writes it with the given status code.
func SendJsonRsp(ctx context.Context, w http.ResponseWriter, statusCode int, rsp any) {
	body := &successRsp{
		Result:   Success,
		Response: rsp,
	}
	rspJson, err := json.Marshal(body)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to marshal response")
		ErrApplicationError("unable to prepare response").Send(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(rspJson)
}
