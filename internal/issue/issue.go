// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

const (
	ToolNotFoundId Id = iota + 1
	TemplateNotFoundId
	ResultDirUnwritableId
	ConfigLoadFailedId
	MarkerTimeoutId
	BuildFailedId
	PayloadNotFoundId
)

type (
	Id int

	MarkdownMsg string

	HttpLink string

	// Issue is a catalogued failure class with Markdown remediation text.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Render returns the issue text rendered for a terminal with the given
// glamour style ("dark", "light", "notty", or a JSON style path).
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 {
		md += "\n\n## See also\n"
		for _, link := range i.docLinks {
			md += fmt.Sprintf("- <%s>\n", link)
		}
	}
	return render(md, stylePath)
}

var (
	render = glamour.Render

	toolNotFoundIssue = &Issue{
		id: ToolNotFoundId,
		mdMsg: `
# A required tool is missing!

A scenario needs an external tool that is not on your PATH. Scenarios
that need it fail, the rest of the matrix keeps running.

## Things you can try
- Install the cargo toolchain (` + "`rustup`" + `) for build phases
- Install the Dioxus CLI for hot-patch scenarios:
~~~
$ cargo install dioxus-cli
~~~
- Install sccache for sccache scenarios:
~~~
$ cargo install sccache
~~~
- Or drop the dimension from ` + "`matrix`" + ` in your config to skip those scenarios.`,
		docLinks: []HttpLink{"https://dioxuslabs.com/learn/0.7/getting_started"},
	}

	templateNotFoundIssue = &Issue{
		id: TemplateNotFoundId,
		mdMsg: `
# Template project not found!

Each scenario copies the template project into a fresh workspace, and the
configured template directory does not exist.

## Things you can try
- Set ` + "`template.dir`" + ` in your config to the template project
- Check the path is readable
~~~
$ buildbench config show
~~~`,
	}

	resultDirUnwritableIssue = &Issue{
		id: ResultDirUnwritableId,
		mdMsg: `
# Cannot write the run log!

Results are appended to a run log after every scenario. When that is not
possible the run stops, since its measurements would be lost.

## Things you can try
- Check free disk space
- Point ` + "`results.dir`" + ` at a writable directory`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try
- Validate the CUE syntax of your config file
- Compare against the effective defaults:
~~~
$ buildbench config show
~~~`,
	}

	markerTimeoutIssue = &Issue{
		id: MarkerTimeoutId,
		mdMsg: `
# A readiness marker never appeared!

The serve process did not print the expected line before the deadline.
The process was terminated and the scenario recorded as failed.

## Things you can try
- Raise ` + "`timeouts.startup`" + ` or ` + "`timeouts.patch`" + `
- Enable ` + "`serve.pty`" + ` if the serve tool buffers output when not attached to a terminal`,
	}

	buildFailedIssue = &Issue{
		id: BuildFailedId,
		mdMsg: `
# A build phase failed!

The build command exited with a non-zero status. Its output was streamed
above.

## Things you can try
- Run the build by hand in a copy of the template
- Check that the toolchain in ` + "`rust-toolchain.toml`" + ` is installed`,
	}

	payloadNotFoundIssue = &Issue{
		id: PayloadNotFoundId,
		mdMsg: `
# Payload constant not found!

The generated source no longer contains the ` + "`PAYLOAD_RANDOM_VALUE`" + `
constant, so incremental changes cannot be simulated. The template and the
generator have drifted apart.`,
	}

	issues = map[Id]*Issue{
		toolNotFoundIssue.Id():        toolNotFoundIssue,
		templateNotFoundIssue.Id():    templateNotFoundIssue,
		resultDirUnwritableIssue.Id(): resultDirUnwritableIssue,
		configLoadFailedIssue.Id():    configLoadFailedIssue,
		markerTimeoutIssue.Id():       markerTimeoutIssue,
		buildFailedIssue.Id():         buildFailedIssue,
		payloadNotFoundIssue.Id():     payloadNotFoundIssue,
	}
)

// Values returns all catalogued issues ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
