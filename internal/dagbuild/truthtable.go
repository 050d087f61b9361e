package dagbuild

// searchOrder returns the build-type precedence order a node of build type
// looker uses to resolve a dependency, per spec's build-type truth table.
// depOld is true when the specific Dep being resolved carries the Old
// modifier; this only changes behaviour for a looker of build type Diff.
func searchOrder(looker BuildType, depOld bool) []BuildType {
	if looker == Diff && depOld {
		return []BuildType{Drop, Build, Diff, Exists}
	}
	if looker == Drop {
		return []BuildType{Drop, Exists, Diff}
	}
	return []BuildType{Build, Exists, Diff}
}
