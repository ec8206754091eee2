// CLAUDE:SUMMARY Blocks configured resource types (images, fonts, media, stylesheets, network fetches) on sandbox tabs.
package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking intercepts requests issued by the rendered page
// and fails those of a blocked type. Generated pages are rendered from
// memory, so this only affects what they reference.
func applyResourceBlocking(page *rod.Page, types []string) error {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(strings.TrimSpace(t))] = true
	}

	router := page.HijackRequests()
	if err := router.Add("*", "", func(ctx *rod.Hijack) {
		if shouldBlock(blockSet, string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return err
	}

	go router.Run()
	return nil
}

// shouldBlock maps CDP resource types to configuration names.
func shouldBlock(blockSet map[string]bool, resType string) bool {
	switch lower := strings.ToLower(resType); lower {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"]
	case "xhr", "fetch", "websocket", "eventsource":
		return blockSet["network"] || blockSet[lower]
	default:
		return blockSet[lower]
	}
}
