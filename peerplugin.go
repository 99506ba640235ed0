package netaio

import "encoding/json"

// JSONPeerPlugin is the default PeerPlugin: it encodes peer data as
// JSON. Applications with tighter wire requirements can swap in their
// own PeerPlugin without touching anything else in a node.
type JSONPeerPlugin struct{}

func (JSONPeerPlugin) EncodeData(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(data)
}

func (JSONPeerPlugin) ParseData(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}
