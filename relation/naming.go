package relation

// JoinTableName many-to-many 关联表名：owner_association，反向声明时交换顺序
func JoinTableName(ownerTable, associationTable string, reversed bool) string {
	if reversed {
		return associationTable + "_" + ownerTable
	}
	return ownerTable + "_" + associationTable
}

// JoinColumnName 关联表中指向 table 的列名
func JoinColumnName(table, identifierColumn string) string {
	return table + "_" + identifierColumn
}

// ForeignKeyColumnName 对象 many-to-one 在本表中的外键列名
func ForeignKeyColumnName(propertyColumn, associationColumn string) string {
	return propertyColumn + "_" + associationColumn
}
