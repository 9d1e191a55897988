package nostr

import (
	"encoding/json"
	"fmt"
)

// Mensagens do protocolo de relay (NIP-01): arrays JSON com o tipo na
// primeira posição. Aqui só montamos/desmontamos os frames que usamos.

func EncodeReq(subID string, filters ...Filter) ([]byte, error) {
	arr := []interface{}{"REQ", subID}
	for _, f := range filters {
		arr = append(arr, f)
	}
	return json.Marshal(arr)
}

func EncodeClose(subID string) ([]byte, error) {
	return json.Marshal([]interface{}{"CLOSE", subID})
}

func EncodeEvent(e *Event) ([]byte, error) {
	return json.Marshal([]interface{}{"EVENT", e})
}

// EncodeEventForSub é o frame EVENT do lado do relay, carimbado com a
// subscription que casou com o evento.
func EncodeEventForSub(subID string, e *Event) ([]byte, error) {
	return json.Marshal([]interface{}{"EVENT", subID, e})
}

func EncodeNotice(message string) ([]byte, error) {
	return json.Marshal([]interface{}{"NOTICE", message})
}

func EncodeOK(eventID string, accepted bool, message string) ([]byte, error) {
	return json.Marshal([]interface{}{"OK", eventID, accepted, message})
}

func EncodeEOSE(subID string) ([]byte, error) {
	return json.Marshal([]interface{}{"EOSE", subID})
}

// RelayMessage é um frame vindo do relay, já identificado.
type RelayMessage struct {
	Type     string
	SubID    string
	Event    *Event
	EventID  string
	Accepted bool
	Message  string
}

// DecodeRelayMessage interpreta um frame recebido. Tipos desconhecidos voltam
// com Type preenchido e o resto vazio, quem chama decide se ignora.
func DecodeRelayMessage(data []byte) (*RelayMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("malformed relay frame: %w", err)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("empty relay frame")
	}

	msg := &RelayMessage{}
	if err := json.Unmarshal(arr[0], &msg.Type); err != nil {
		return nil, fmt.Errorf("malformed relay frame type: %w", err)
	}

	switch msg.Type {
	case "EVENT":
		if len(arr) < 3 {
			return nil, fmt.Errorf("EVENT frame too short")
		}
		if err := json.Unmarshal(arr[1], &msg.SubID); err != nil {
			return nil, err
		}
		msg.Event = &Event{}
		if err := json.Unmarshal(arr[2], msg.Event); err != nil {
			return nil, fmt.Errorf("malformed event payload: %w", err)
		}
	case "OK":
		if len(arr) < 3 {
			return nil, fmt.Errorf("OK frame too short")
		}
		if err := json.Unmarshal(arr[1], &msg.EventID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(arr[2], &msg.Accepted); err != nil {
			return nil, err
		}
		if len(arr) > 3 {
			_ = json.Unmarshal(arr[3], &msg.Message)
		}
	case "EOSE", "CLOSED":
		if len(arr) > 1 {
			_ = json.Unmarshal(arr[1], &msg.SubID)
		}
		if len(arr) > 2 {
			_ = json.Unmarshal(arr[2], &msg.Message)
		}
	case "NOTICE":
		if len(arr) > 1 {
			_ = json.Unmarshal(arr[1], &msg.Message)
		}
	}
	return msg, nil
}

// ClientMessage é um frame vindo de um cliente, visto pelo lado do relay
// (usado no simulador de oráculo e nos relays fake dos testes).
type ClientMessage struct {
	Type    string
	SubID   string
	Filters []Filter
	Event   *Event
}

func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("malformed client frame: %w", err)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("empty client frame")
	}

	msg := &ClientMessage{}
	if err := json.Unmarshal(arr[0], &msg.Type); err != nil {
		return nil, fmt.Errorf("malformed client frame type: %w", err)
	}

	switch msg.Type {
	case "REQ":
		if len(arr) < 3 {
			return nil, fmt.Errorf("REQ frame too short")
		}
		if err := json.Unmarshal(arr[1], &msg.SubID); err != nil {
			return nil, err
		}
		for _, raw := range arr[2:] {
			var f Filter
			if err := json.Unmarshal(raw, &f); err != nil {
				return nil, fmt.Errorf("malformed filter: %w", err)
			}
			msg.Filters = append(msg.Filters, f)
		}
	case "CLOSE":
		if len(arr) < 2 {
			return nil, fmt.Errorf("CLOSE frame too short")
		}
		if err := json.Unmarshal(arr[1], &msg.SubID); err != nil {
			return nil, err
		}
	case "EVENT":
		if len(arr) < 2 {
			return nil, fmt.Errorf("EVENT frame too short")
		}
		msg.Event = &Event{}
		if err := json.Unmarshal(arr[1], msg.Event); err != nil {
			return nil, fmt.Errorf("malformed event payload: %w", err)
		}
	}
	return msg, nil
}
