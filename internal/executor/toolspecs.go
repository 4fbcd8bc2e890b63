package executor

// DefaultToolSpecs describes the AI CLI tools Loopwork knows how to drive
// out of the box ("two tool variants"): `claude`, invoked
// with a positional prompt argument and a permission-grant environment
// variable, and `codex`, which reads its prompt from stdin.
func DefaultToolSpecs() []ToolSpec {
	return []ToolSpec{
		{
			Name:             "claude",
			Binary:           "claude",
			Variant:          VariantPositionalArg,
			PermissionEnvVar: "CLAUDE_DANGEROUSLY_SKIP_PERMISSIONS",
		},
		{
			Name:    "codex",
			Binary:  "codex",
			Variant: VariantStdin,
		},
	}
}
