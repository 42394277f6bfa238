package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mmcdole/repoauthz/pkg/authz"
	"github.com/mmcdole/repoauthz/pkg/retrieval"
)

var (
	treeHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	treePathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	treeGrantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	treeDenyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	treeHelpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	treeCursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)

// treeKeys names the bindings shown in the footer and doubles as the
// single source of truth consulted by Update for key matching.
var treeKeys = struct {
	Up, Down, Descend, Up2, Quit key.Binding
}{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
	Descend: key.NewBinding(key.WithKeys("enter", "l", "right"), key.WithHelp("enter/→", "descend")),
	Up2:     key.NewBinding(key.WithKeys("backspace", "h", "left"), key.WithHelp("←/bksp", "up a level")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

func newTreeCmd() *cobra.Command {
	var (
		rulesPath  string
		groupsPath string
		repo       string
		user       string
		anonymous  bool
		mustExist  bool
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Interactively browse the compiled decision tree for one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := retrieval.Load(afero.NewOsFs(), retrieval.Location(rulesPath), retrieval.Location(groupsPath), mustExist)
			if err != nil {
				return err
			}

			var userPtr *string
			if !anonymous {
				userPtr = &user
			}
			root := authz.CompileTree(loaded, repo, userPtr)

			program := tea.NewProgram(newTreeModel(root, userPtr))
			_, err = program.Run()
			return err
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "path to the rules file (required)")
	cmd.Flags().StringVar(&groupsPath, "groups", "", "path to a separate groups file, if any")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name (empty matches unscoped rules)")
	cmd.Flags().StringVar(&user, "user", "", "authenticated user name")
	cmd.Flags().BoolVar(&anonymous, "anonymous", false, "browse as the anonymous user")
	cmd.Flags().BoolVar(&mustExist, "must-exist", true, "fail if the rules file does not exist, instead of treating it as empty")
	cmd.MarkFlagRequired("rules")

	return cmd
}

// treeModel is a bubbletea model for walking authz.Node by segment.
// path holds the breadcrumb of Nodes from root to the current node;
// cursor indexes into the current node's sorted children.
type treeModel struct {
	path    []*authz.Node
	names   []string
	cursor  int
	user    *string
	width   int
	height  int
}

func newTreeModel(root *authz.Node, user *string) treeModel {
	return treeModel{path: []*authz.Node{root}, names: []string{"/"}, user: user}
}

func (m treeModel) current() *authz.Node {
	return m.path[len(m.path)-1]
}

func (m treeModel) sortedChildNames() []string {
	node := m.current()
	names := make([]string, 0, len(node.Children))
	for name := range node.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m treeModel) Init() tea.Cmd { return nil }

func (m treeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		if sizeMsg, ok := msg.(tea.WindowSizeMsg); ok {
			m.width, m.height = sizeMsg.Width, sizeMsg.Height
		}
		return m, nil
	}

	children := m.sortedChildNames()
	switch {
	case key.Matches(keyMsg, treeKeys.Quit):
		return m, tea.Quit
	case key.Matches(keyMsg, treeKeys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, treeKeys.Down):
		if m.cursor < len(children)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, treeKeys.Descend):
		if len(children) > 0 {
			name := children[m.cursor]
			m.path = append(m.path, m.current().Children[name])
			m.names = append(m.names, name)
			m.cursor = 0
		}
	case key.Matches(keyMsg, treeKeys.Up2):
		if len(m.path) > 1 {
			m.path = m.path[:len(m.path)-1]
			m.names = m.names[:len(m.names)-1]
			m.cursor = 0
		}
	}
	return m, nil
}

func (m treeModel) View() string {
	var b strings.Builder

	who := "$anonymous"
	if m.user != nil {
		who = *m.user
	}
	fmt.Fprintf(&b, "%s  %s\n\n", treeHeaderStyle.Render("authzcheck tree"), treeHelpStyle.Render("user="+who))

	fmt.Fprintf(&b, "%s\n", treePathStyle.Render(strings.Join(m.names, "/")))
	node := m.current()
	fmt.Fprintf(&b, "explicit=%s  min=%s  max=%s\n\n", rightsLabel(node.Access), node.MinRights.String(), node.MaxRights.String())

	children := m.sortedChildNames()
	if len(children) == 0 {
		b.WriteString(treeHelpStyle.Render("(no children)") + "\n")
	}
	for i, name := range children {
		child := node.Children[name]
		line := fmt.Sprintf("%s  min=%s max=%s", name, child.MinRights.String(), child.MaxRights.String())
		if child.MaxRights == 0 {
			line = treeDenyStyle.Render(line)
		} else {
			line = treeGrantStyle.Render(line)
		}
		cursor := "  "
		if i == m.cursor {
			cursor = treeCursorStyle.Render("> ")
		}
		fmt.Fprintf(&b, "%s%s\n", cursor, line)
	}

	help := []string{treeKeys.Up.Help().Key, treeKeys.Down.Help().Key, treeKeys.Descend.Help().Key, treeKeys.Up2.Help().Key, treeKeys.Quit.Help().Key}
	b.WriteString("\n" + treeHelpStyle.Render(strings.Join(help, " · ")))
	return b.String()
}

func rightsLabel(access *authz.Access) string {
	if access == nil {
		return "(inherited)"
	}
	if access.Rights == 0 {
		return "(none)"
	}
	return access.Rights.String()
}
