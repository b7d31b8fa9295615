package filterobj

import (
	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/cfgutil"
)

// hitAction reads the required "action" attribute shared by every built-in
// filter object: the verdict it reports when it hits, before the owning
// rule has a chance to override it with the rule's own action.
func hitAction(node ConfigNode) (a action.Action, err error) {
	s, err := cfgutil.RequireAttr(node, "action")
	if err != nil {
		return action.Nomatch, err
	}

	return action.FromText(s)
}
