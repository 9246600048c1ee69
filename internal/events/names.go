package events

// Event names reported by the session, login and scrape components
const (
	SessionReused       = "session.reused"
	SessionStale        = "session.stale"
	SessionLaunching    = "session.launching"
	SessionLaunched     = "session.launched"
	SessionLaunchFailed = "session.launch_failed"
	SessionPageOpened   = "session.page_opened"
	SessionClosed       = "session.closed"
	SessionCloseFailed  = "session.close_failed"

	StateSaved       = "state.saved"
	StateSaveSkipped = "state.save_skipped"
	StateWriteFailed = "state.write_failed"
	StateDeleted     = "state.deleted"
	StateDeleteError = "state.delete_failed"

	LoginNavigateFailed = "login.navigate_failed"
	LoginAuthenticated  = "login.authenticated"
	LoginPromptShown    = "login.prompt_shown"
	LoginWaiting        = "login.waiting"
	LoginTimedOut       = "login.timed_out"
	LoginAmbiguous      = "login.probe_ambiguous"
	LoginProbeFailed    = "login.probe_failed"

	SearchStarted        = "search.started"
	SearchFilterSkipped  = "search.filter_skipped"
	SearchResults        = "search.results"
	SearchLinkFailed     = "search.link_failed"
	SearchItemVisited    = "search.item_visited"
	SearchItemFailed     = "search.item_failed"
	SearchImageFailed    = "search.image_failed"
	SearchCompleted      = "search.completed"
	SearchSessionRelease = "search.session_released"
)
