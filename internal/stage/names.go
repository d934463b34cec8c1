package stage

// Stage names double as attempt-counter keys on stored records, so renaming
// one invalidates history.
const (
	NameFetch    = "fetch"
	NameCreate   = "create"
	NamePoll     = "poll"
	NameDownload = "download"
	NameStore    = "store"
	NamePublish  = "publish"
)
