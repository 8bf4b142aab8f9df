package types

// Tournament is the JSON view of one tournament as served over HTTP and
// pushed over the websocket.
//
//	{
//	  "code": "ZED123",
//	  "version": 4,
//	  "phase": "voting",                       // "setup" | "voting" | "done"
//	  "entries": ["127 Hours", "Trainspotting"],
//	  "vote": {
//	    "pair": ["Sunshine", "Millions"],
//	    "tally": {"Sunshine": 2}              // omitted until the first vote
//	  },
//	  "winner": "Trainspotting"                // only when phase is "done"
//	}
type Tournament struct {
	Code    string   `json:"code"`
	Version int      `json:"version"`
	Phase   string   `json:"phase"`
	Entries []string `json:"entries"`
	Vote    *Vote    `json:"vote,omitempty"`
	Winner  *string  `json:"winner,omitempty"`
}

type Vote struct {
	Pair  [2]string      `json:"pair"`
	Tally map[string]int `json:"tally,omitempty"`
}
