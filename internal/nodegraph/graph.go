// Package nodegraph implements the node-graph execution protocol shared by
// all three inference gateways: upload staged inputs, rewrite
// a JSON node-graph template, queue it on the backend, stream progress over
// a WebSocket, fetch the finished output, and persist it locally.
// The protocol is implemented once here; each gateway supplies only its
// graph template and a GraphBinding describing where client parameters land
// in that template.
package nodegraph

import "encoding/json"

// Node is one entry of a node-graph template, keyed by node id in Graph.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      *NodeMeta      `json:"_meta,omitempty"`
}

// NodeMeta carries the human-readable title ComfyUI-style backends attach
// to nodes; bindings may match on title as a tie-breaker when several nodes
// share a class_type.
type NodeMeta struct {
	Title string `json:"title"`
}

// Graph is the full node-graph template/instance, keyed by node id. It is
// the one place in this codebase where a free-form dict crosses a process
// boundary deliberately — the wire protocol to the backend IS a dict.
type Graph map[string]Node

// Clone deep-copies g so RewriteGraph never mutates the loaded template.
func (g Graph) Clone() Graph {
	out := make(Graph, len(g))
	for id, n := range g {
		inputs := make(map[string]any, len(n.Inputs))
		for k, v := range n.Inputs {
			inputs[k] = v
		}
		var meta *NodeMeta
		if n.Meta != nil {
			m := *n.Meta
			meta = &m
		}
		out[id] = Node{ClassType: n.ClassType, Inputs: inputs, Meta: meta}
	}
	return out
}

// LoadTemplate parses a JSON node-graph template from raw bytes.
func LoadTemplate(raw []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return g, nil
}

// ScalarTarget locates a single input field within one node, matched by
// class_type and, optionally, a substring of the node's title (used to
// disambiguate e.g. a "Positive" vs "Negative" CLIPTextEncode pair).
type ScalarTarget struct {
	ClassType     string
	TitleContains string
	InputKey      string
}

func (t ScalarTarget) matches(n Node) bool {
	if t.ClassType != "" && n.ClassType != t.ClassType {
		return false
	}
	if t.TitleContains != "" {
		if n.Meta == nil || !containsFold(n.Meta.Title, t.TitleContains) {
			return false
		}
	}
	return true
}

// LoadTarget names one node that receives a staged filename: its
// class_type and the input field the filename is written to (e.g.
// "image", "audio", "video"). InputKey defaults to "image".
type LoadTarget struct {
	ClassType string
	InputKey  string
}

// GraphBinding describes, for one graph template, which nodes the
// upload/queue-time parameters must be written into. One GraphBinding per
// gateway instance (image/video/lipsync) is enough to dedupe the
// node-graph execution protocol across all three.
type GraphBinding struct {
	// LoadInputs lists, in assignment order, the nodes whose
	// staged-filename input gets set from the Upload phase's results —
	// e.g. two LoadImage entries for a two-reference edit graph, or a
	// VHS_LoadVideo + LoadAudio pair for lip-sync.
	LoadInputs []LoadTarget

	// PromptTargets receive the user's positive prompt text.
	PromptTargets []ScalarTarget

	// ScalarTargets maps a client-supplied param name (e.g. "steps", "cfg",
	// "seed", "width", "height") to where it's written in the graph.
	ScalarTargets map[string]ScalarTarget

	// FPSTargets receive one consistent fps value across every
	// video-length and frame-rate node in the template.
	FPSTargets []ScalarTarget

	// SeedTargets receive the sampler seed; randomized when the caller
	// didn't supply one via ScalarTargets["seed"].
	SeedTargets []ScalarTarget
}

// RewriteParams is the per-run input to RewriteGraph.
type RewriteParams struct {
	StagedFilenames []string
	Prompt          string
	Scalars         map[string]float64
	FPS             float64
	Seed            int64 // 0 means "not supplied, randomize"
}

// RandomSeed is overridden in tests; production callers get a
// crypto/rand-seeded value via nodegraph.NewSeed.
var RandomSeed func() int64 = NewSeed

// RewriteGraph deep-copies template and applies binding: staged filenames
// into LoadImage/LoadAudio/LoadVideo nodes, the
// prompt into the positive-prompt encoder, scalar params into their bound
// nodes, a consistent fps into video-length/frame-rate nodes, and a
// randomized seed into the sampler when none was supplied.
func RewriteGraph(template Graph, binding GraphBinding, params RewriteParams) Graph {
	g := template.Clone()

	assignLoadInputs(g, binding, params.StagedFilenames)

	if params.Prompt != "" {
		for _, t := range binding.PromptTargets {
			setMatching(g, t, params.Prompt)
		}
	}

	for name, target := range binding.ScalarTargets {
		if v, ok := params.Scalars[name]; ok {
			setMatching(g, target, v)
		}
	}

	if params.FPS > 0 {
		for _, t := range binding.FPSTargets {
			setMatching(g, t, params.FPS)
		}
	}

	seed := params.Seed
	if seed == 0 {
		seed = RandomSeed()
	}
	for _, t := range binding.SeedTargets {
		setMatching(g, t, seed)
	}

	return g
}

// assignLoadInputs walks the graph in a stable node-id order and binds
// staged filenames to load-class nodes positionally: the i-th load target
// takes the i-th staged filename, and a node is never bound twice even
// when two targets share a class_type.
func assignLoadInputs(g Graph, binding GraphBinding, filenames []string) {
	if len(binding.LoadInputs) == 0 || len(filenames) == 0 {
		return
	}

	ids := sortedNodeIDs(g)
	used := make(map[string]bool)
	fi := 0
	for _, target := range binding.LoadInputs {
		if fi >= len(filenames) {
			return
		}
		key := target.InputKey
		if key == "" {
			key = "image"
		}
		for _, id := range ids {
			n := g[id]
			if used[id] || n.ClassType != target.ClassType {
				continue
			}
			if _, has := n.Inputs[key]; !has {
				continue
			}
			n.Inputs[key] = filenames[fi]
			used[id] = true
			fi++
			break
		}
	}
}

func setMatching(g Graph, target ScalarTarget, value any) {
	for _, id := range sortedNodeIDs(g) {
		n := g[id]
		if target.matches(n) {
			n.Inputs[target.InputKey] = value
		}
	}
}

func sortedNodeIDs(g Graph) []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	// Node ids in ComfyUI-style graphs are small integers encoded as
	// strings; sort numerically where possible so load-input assignment
	// order matches the template's declared order.
	sortStrings(ids)
	return ids
}
