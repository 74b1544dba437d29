package env

type Args struct {
	Verbose  *bool
	Config   *string
	Serial   *string
	Policy   *string
	Metrics  *string
	Board    *string
	Duration *string
}
