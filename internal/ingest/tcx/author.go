package tcx

import (
	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/xmltree"
)

// buildAuthor decodes the root Author element.
func buildAuthor(n *xmltree.Node) *models.Author {
	a := &models.Author{}
	if name := n.Child(nsTCX, "Name"); name != nil {
		text := name.Text
		a.Name = &text
	}

	version := n.Child(nsTCX, "Build").Child(nsTCX, "Version")
	for _, v := range childrenOf(version) {
		if v.Space != nsTCX {
			continue
		}
		switch v.Name {
		case "VersionMajor":
			a.VersionMajor = intPtr(v.Text)
		case "VersionMinor":
			a.VersionMinor = intPtr(v.Text)
		case "BuildMajor":
			a.BuildMajor = intPtr(v.Text)
		case "BuildMinor":
			a.BuildMinor = intPtr(v.Text)
		}
	}
	return a
}

func childrenOf(n *xmltree.Node) []*xmltree.Node {
	if n == nil {
		return nil
	}
	return n.Children
}
