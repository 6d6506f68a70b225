// Package protocol is the wire form of the worker boundary. Every message is
// an Envelope whose Type selects the payload; document values travel as the
// same JSON the snapshots use.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/mapworker"
)

var ErrUnknownType = errors.New("protocol: unknown message type")

type Envelope struct {
	Type    string          `json:"type"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encode(typ string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Payload: payload})
}

func EncodeCommand(cmd mapworker.Command) ([]byte, error) {
	return encode(cmd.CommandType(), cmd)
}

func EncodeNotification(n mapworker.Notification) ([]byte, error) {
	return encode(n.NotificationType(), n)
}

func DecodeCommand(data []byte) (mapworker.Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	return CommandFromEnvelope(env)
}

func CommandFromEnvelope(env Envelope) (mapworker.Command, error) {
	dec, ok := commandDecoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	cmd, err := dec(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
	}
	return cmd, nil
}

func DecodeNotification(data []byte) (mapworker.Notification, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	dec, ok := notificationDecoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	n, err := dec(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
	}
	return n, nil
}

func unmarshal(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func decodeAs[T any](raw json.RawMessage) (T, error) {
	var v T
	err := unmarshal(raw, &v)
	return v, err
}

// decodeMap runs document.Decode so loaded maps get the same defaults and
// checks as snapshots read from disk.
func decodeMap(raw json.RawMessage) (*document.Map, error) {
	var body struct {
		Map json.RawMessage `json:"map"`
	}
	if err := unmarshal(raw, &body); err != nil {
		return nil, err
	}
	if len(body.Map) == 0 || string(body.Map) == "null" {
		return nil, errors.New("missing map")
	}
	return document.Decode(body.Map)
}

func command[T mapworker.Command](raw json.RawMessage) (mapworker.Command, error) {
	v, err := decodeAs[T](raw)
	return v, err
}

func notification[T mapworker.Notification](raw json.RawMessage) (mapworker.Notification, error) {
	v, err := decodeAs[T](raw)
	return v, err
}

var commandDecoders = map[string]func(json.RawMessage) (mapworker.Command, error){
	mapworker.TypeUpdateMap:                command[mapworker.UpdateMap],
	mapworker.TypeSetActiveTool:            command[mapworker.SetActiveTool],
	mapworker.TypeSetActiveMapItemTemplate: command[mapworker.SetActiveMapItemTemplate],
	mapworker.TypeSelectAllInView:          command[mapworker.SelectAllInView],
	mapworker.TypeUnSelectAll:              command[mapworker.UnSelectAll],
	mapworker.TypeUndo:                     command[mapworker.Undo],
	mapworker.TypeRedo:                     command[mapworker.Redo],
	mapworker.TypeDeleteSelected:           command[mapworker.DeleteSelected],
	mapworker.TypeCursorChanged:            command[mapworker.CursorChanged],
	mapworker.TypePointer:                  command[mapworker.Pointer],
	mapworker.TypeKey:                      command[mapworker.Key],
	mapworker.TypeSetCanvasSize:            command[mapworker.SetCanvasSize],
	mapworker.TypeSetOverlay:               command[mapworker.SetOverlay],
	mapworker.TypeSetToolOption:            command[mapworker.SetToolOption],
	mapworker.TypeMarkSaved:                command[mapworker.MarkSaved],
	mapworker.TypeLoadMap: func(raw json.RawMessage) (mapworker.Command, error) {
		m, err := decodeMap(raw)
		if err != nil {
			return nil, err
		}
		return mapworker.LoadMap{Map: m}, nil
	},
}

var notificationDecoders = map[string]func(json.RawMessage) (mapworker.Notification, error){
	mapworker.TypeMapUpdated:        notification[mapworker.MapUpdated],
	mapworker.TypeChangeCursor:      notification[mapworker.ChangeCursor],
	mapworker.TypeChangeToolOptions: notification[mapworker.ChangeToolOptions],
	mapworker.TypeTransactionFailed: notification[mapworker.TransactionFailed],
	mapworker.TypeMapLoaded: func(raw json.RawMessage) (mapworker.Notification, error) {
		m, err := decodeMap(raw)
		if err != nil {
			return nil, err
		}
		return mapworker.MapLoaded{Map: m}, nil
	},
}
