package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/apiview-dispatcher/pkg/apiview"
	"github.com/morezero/apiview-dispatcher/pkg/commsutil"
	"github.com/morezero/apiview-dispatcher/pkg/dispatcher"
)

const commsLogPrefix = "server:comms"

// HeaderRequestID carries the request id on COMMS messages and HTTP requests.
const HeaderRequestID = "X-Request-Id"

// DispatchReply is the COMMS reply to a dispatch request.
type DispatchReply struct {
	Ok       bool              `json:"ok"`
	Response *apiview.Response `json:"response,omitempty"`
	Error    *ErrorDetail      `json:"error,omitempty"`
}

// ErrorDetail describes a request that never reached a handler.
type ErrorDetail struct {
	Code    apiview.Code `json:"code"`
	Kind    string       `json:"kind"`
	Message string       `json:"message"`
}

func errorDetail(err error) *ErrorDetail {
	code, ok := apiview.CodeOf(err)
	if !ok {
		code = apiview.InvalidRequestData
	}
	return &ErrorDetail{Code: code, Kind: code.String(), Message: err.Error()}
}

// Subscribe answers dispatch requests on the configured subject.
func (s *Server) Subscribe(ctx context.Context) (*comms.Subscription, error) {
	if s.nc == nil {
		return nil, errors.New(commsLogPrefix + " - no COMMS connection")
	}
	subject := s.cfg.DispatchSubject
	if subject == "" {
		subject = commsutil.SubjectDispatch
	}

	sub, err := s.nc.Subscribe(subject, func(msg *comms.Msg) {
		reply := s.dispatchMessage(ctx, msg)
		if msg.Reply == "" {
			return
		}
		data, err := commsutil.EncodePayload(reply)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode reply: %v", commsLogPrefix, err))
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond: %v", commsLogPrefix, err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsLogPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", commsLogPrefix, subject))
	return sub, nil
}

func (s *Server) dispatchMessage(ctx context.Context, msg *comms.Msg) *DispatchReply {
	req, err := dispatcher.ParseRequest(msg.Data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - rejected request on %s: %v", commsLogPrefix, msg.Subject, err))
		return &DispatchReply{Ok: false, Error: errorDetail(err)}
	}
	if req.ID == "" && msg.Header != nil {
		req.ID = msg.Header.Get(HeaderRequestID)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	return &DispatchReply{Ok: true, Response: s.disp.Dispatch(reqCtx, req)}
}
