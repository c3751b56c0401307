package smartset

import "github.com/nerrad567/wolf-bridge/internal/device"

// guiDescription is the menu tree returned by GetGuiDescriptionForGateway.
// Parameters hang off tab views at any menu depth.
type guiDescription struct {
	MenuItems []menuItem `json:"MenuItems"`
}

type menuItem struct {
	Name           string     `json:"Name"`
	TabViews       []tabView  `json:"TabViews"`
	SubMenuEntries []menuItem `json:"SubMenuEntries"`
}

type tabView struct {
	TabName              string                `json:"TabName"`
	BundleID             int64                 `json:"BundleId"`
	ParameterDescriptors []parameterDescriptor `json:"ParameterDescriptors"`
}

type parameterDescriptor struct {
	Name                      string                `json:"Name"`
	ParameterID               int64                 `json:"ParameterId"`
	ValueID                   int64                 `json:"ValueId"`
	BundleID                  int64                 `json:"BundleId"`
	IsReadOnly                bool                  `json:"IsReadOnly"`
	ChildParameterDescriptors []parameterDescriptor `json:"ChildParameterDescriptors"`
}

// flatten walks the menu tree depth first and returns one Parameter per
// value id, parented by the tab it appears on. The first occurrence of a
// value id wins.
func (d guiDescription) flatten() []device.Parameter {
	var out []device.Parameter
	seen := make(map[int64]bool)

	var addDescriptors func(tab tabView, descs []parameterDescriptor)
	addDescriptors = func(tab tabView, descs []parameterDescriptor) {
		for _, pd := range descs {
			if !seen[pd.ValueID] {
				seen[pd.ValueID] = true
				bundle := pd.BundleID
				if bundle == 0 {
					bundle = tab.BundleID
				}
				out = append(out, device.Parameter{
					Name:        pd.Name,
					ParameterID: pd.ParameterID,
					ValueID:     pd.ValueID,
					BundleID:    bundle,
					ReadOnly:    pd.IsReadOnly,
					Parent:      tab.TabName,
				})
			}
			addDescriptors(tab, pd.ChildParameterDescriptors)
		}
	}

	var walk func(items []menuItem)
	walk = func(items []menuItem) {
		for _, item := range items {
			for _, tab := range item.TabViews {
				addDescriptors(tab, tab.ParameterDescriptors)
			}
			walk(item.SubMenuEntries)
		}
	}
	walk(d.MenuItems)

	return out
}
