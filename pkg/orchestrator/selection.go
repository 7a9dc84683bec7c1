package orchestrator

import (
	"github.com/entrhq/orthoforge/pkg/browser"
)

// SelectNextExercise opens the next runnable exercise from the list page.
// Cells are tried by status class in priority order; within a cell the
// launch control is clicked when visible, the cell itself otherwise. It
// reports false when nothing could be opened.
func (o *Orchestrator) SelectNextExercise(page browser.Page, id string) (bool, error) {
	logger := o.log.With(id)
	sel := o.cfg.Selectors
	timeout := o.cfg.Timing.ElementTimeout

	candidates := make([]string, 0, len(sel.StatusClasses))
	for _, class := range sel.StatusClasses {
		candidates = append(candidates, sel.ExerciseCell+"."+class)
	}
	if len(candidates) == 0 {
		candidates = append(candidates, sel.ExerciseCell)
	}

	for _, selector := range candidates {
		cells := page.Locator(selector)
		n, err := cells.Count()
		if err != nil {
			return false, err
		}

		for i := 0; i < n; i++ {
			cell := cells.Nth(i)
			if !cell.IsVisible(0) {
				continue
			}

			target := cell
			if sel.LaunchButton != "" {
				if launch := cell.Locator(sel.LaunchButton); launch.IsVisible(0) {
					target = launch
				}
			}
			if err := target.Click(timeout); err != nil {
				logger.Debugf("could not open exercise %s #%d: %v", selector, i, err)
				continue
			}

			logger.Infof("opened exercise %s #%d", selector, i)
			return true, nil
		}
	}
	return false, nil
}
