// Package codegen emits the fixed configuration artifacts of an instance.
// Generation is pure: no inputs, no I/O, and byte-identical output across
// calls. Writing the artifact to disk is the caller's job.
package codegen

import "strings"

// GeneratedDir is the reserved directory for machine-generated function
// code. It is the only path excluded from typechecking.
const GeneratedDir = "_generated"

// compilerOption is one "key": value entry of the compiler options block.
// Value is raw JSON text so the emitted artifact stays byte-exact.
type compilerOption struct {
	Key   string
	Value string
}

// editableOptions are safe for end users to change. Regenerating the
// descriptor resets them, but nothing in the platform depends on them.
var editableOptions = []compilerOption{
	{"allowJs", "true"},
	{"strict", "true"},
}

// requiredOptions are mandated by the function runtime and typechecker.
// They are kept in a separate partition so no caller can override them;
// the two partitions only meet at emission time.
var requiredOptions = []compilerOption{
	{"target", `"ESNext"`},
	{"lib", `["ES2021", "dom"]`},
	{"forceConsistentCasingInFileNames", "true"},
	{"allowSyntheticDefaultImports", "true"},
	{"module", `"ESNext"`},
	{"moduleResolution", `"Bundler"`},
	{"isolatedModules", "true"},
	{"skipLibCheck", "true"},
	{"noEmit", "true"},
}

// TSConfig returns the TypeScript environment descriptor for the functions
// directory. Calling it twice always yields identical strings.
func TSConfig() string {
	var b strings.Builder

	b.WriteString("{\n")
	b.WriteString("  /* This TypeScript project config describes the environment that\n")
	b.WriteString("   * Convex functions run in and is used to typecheck them.\n")
	b.WriteString("   * You can modify it, but some settings are required to use Convex.\n")
	b.WriteString("   */\n")
	b.WriteString("  \"compilerOptions\": {\n")

	b.WriteString("    /* These settings are not required by Convex and can be modified. */\n")
	writeOptions(&b, editableOptions, true)

	b.WriteString("\n    /* These compiler options are required by Convex */\n")
	writeOptions(&b, requiredOptions, false)

	b.WriteString("  },\n")
	b.WriteString("  \"include\": [\"./**/*\"],\n")
	b.WriteString("  \"exclude\": [\"./" + GeneratedDir + "\"]\n")
	b.WriteString("}\n")

	return b.String()
}

func writeOptions(b *strings.Builder, options []compilerOption, trailingComma bool) {
	for i, opt := range options {
		b.WriteString("    \"" + opt.Key + "\": " + opt.Value)
		if trailingComma || i < len(options)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
}

// RequiredOptionKeys returns the keys of the required partition, in
// emission order.
func RequiredOptionKeys() []string {
	keys := make([]string, len(requiredOptions))
	for i, opt := range requiredOptions {
		keys[i] = opt.Key
	}
	return keys
}

// EditableOptionKeys returns the keys of the user-modifiable partition, in
// emission order.
func EditableOptionKeys() []string {
	keys := make([]string, len(editableOptions))
	for i, opt := range editableOptions {
		keys[i] = opt.Key
	}
	return keys
}
