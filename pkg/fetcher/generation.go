package fetcher

import "github.com/morezero/apiview-dispatcher/pkg/apiview"

// Generation describes one handler contract: where its handlers live and
// which codes report resolution failures.
type Generation struct {
	name          string
	folder        string
	notFound      apiview.Code
	invalidExport apiview.Code
	requireView   bool
}

var (
	// API is the legacy generation. Handlers implement apiview.Processor.
	API = Generation{
		name:          "api",
		folder:        "api",
		notFound:      apiview.APINotFound,
		invalidExport: apiview.InvalidAPI,
	}

	// APIView is the current generation. Handlers embed apiview.View and
	// implement apiview.ViewProcessor.
	APIView = Generation{
		name:          "api-view",
		folder:        "api-view",
		notFound:      apiview.APIViewNotFound,
		invalidExport: apiview.InvalidAPIView,
		requireView:   true,
	}
)

// ParseGeneration returns the generation with the given name ("api" or "api-view").
func ParseGeneration(name string) (Generation, bool) {
	switch name {
	case API.name:
		return API, true
	case APIView.name:
		return APIView, true
	default:
		return Generation{}, false
	}
}

// Name returns the generation name.
func (g Generation) Name() string { return g.name }

// Folder returns the base folder handlers of this generation are registered under.
func (g Generation) Folder() string { return g.folder }

// IsView reports whether handlers of this generation embed apiview.View.
func (g Generation) IsView() bool { return g.requireView }

func (g Generation) hasProcess(instance interface{}) bool {
	if g.requireView {
		_, ok := instance.(apiview.ViewProcessor)
		return ok
	}
	_, ok := instance.(apiview.Processor)
	return ok
}
